package api

import (
	"net/http"
	"net/url"
	"strings"

	"food-order-service/internal/apperr"
	"food-order-service/internal/service"
	"food-order-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type paymentNoteRequest struct {
	Note string `json:"note" binding:"max=500"`
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var req paymentNoteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	order, err := h.Payments.MarkVerified(c.Request.Context(), actorOf(c), c.Param("number"), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) rejectPayment(c *gin.Context) {
	var req paymentNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Payments.RejectManual(c.Request.Context(), actorOf(c), c.Param("number"), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) initiatePayment(c *gin.Context) {
	session, err := h.Payments.InitiateGateway(c.Request.Context(), actorOf(c), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_url": session.URL,
		"session_id":  session.SessionID,
	})
}

// gatewayRedirect handles the browser coming back from the hosted page.
// The customer always lands on the frontend; the order page shows the
// outcome reconciliation decided.
func (h *Handler) gatewayRedirect(kind service.CallbackKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := util.GetLogger()

		cb, err := h.Provider.ParseCallback(c.Request)
		if err != nil {
			logger.Warn("Unreadable gateway redirect", zap.String("kind", string(kind)), zap.Error(err))
			c.Redirect(http.StatusSeeOther, h.frontendURL("", "error"))
			return
		}

		result, err := h.Payments.HandleCallback(c.Request.Context(), kind, cb)
		if err != nil {
			logger.Warn("Gateway redirect not reconciled",
				zap.String("kind", string(kind)),
				zap.String("order_number", cb.OrderNumber),
				zap.Error(err))
			outcome := "error"
			if apperr.ReasonOf(err) == apperr.ReasonGatewayUnverified {
				outcome = "unverified"
			}
			c.Redirect(http.StatusSeeOther, h.frontendURL(cb.OrderNumber, outcome))
			return
		}

		c.Redirect(http.StatusSeeOther, h.frontendURL(result.OrderNumber, string(result.Outcome)))
	}
}

// gatewayIPN handles server-to-server notifications. Duplicates answer 200
// so the gateway stops retrying; validation failures answer with an error
// status so it tries again.
func (h *Handler) gatewayIPN(c *gin.Context) {
	cb, err := h.Provider.ParseCallback(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Payments.HandleCallback(c.Request.Context(), service.CallbackIPN, cb)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_number": result.OrderNumber,
		"outcome":      result.Outcome,
		"applied":      result.Applied,
	})
}

func (h *Handler) frontendURL(orderNumber, outcome string) string {
	base := strings.TrimRight(h.FrontendBaseURL, "/")
	path := "/orders"
	if orderNumber != "" {
		path += "/" + url.PathEscape(orderNumber)
	}
	return base + path + "?" + url.Values{"payment": {outcome}}.Encode()
}
