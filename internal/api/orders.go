package api

import (
	"net/http"

	"food-order-service/internal/models"
	"food-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Orders.CreateOrder(c.Request.Context(), actorOf(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order.Summary())
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.Orders.GetOrder(c.Request.Context(), actorOf(c), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listMyOrders(c *gin.Context) {
	orders, err := h.Orders.ListMyOrders(c.Request.Context(), actorOf(c), pageOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) listOrders(c *gin.Context) {
	status := models.OrderStatus(c.Query("status"))
	orders, err := h.Orders.ListOrders(c.Request.Context(), actorOf(c), status, pageOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

func (h *Handler) cancelOrder(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	order, err := h.Machine.Cancel(c.Request.Context(), c.Param("number"), actorOf(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type transitionRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note" binding:"max=500"`
}

func (h *Handler) transitionOrder(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Machine.Transition(c.Request.Context(), c.Param("number"), req.Status, actorOf(c), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type paymentProofRequest struct {
	TransactionID string `json:"transaction_id" binding:"max=100"`
	ProofURL      string `json:"proof_url"`
}

func (h *Handler) submitPaymentProof(c *gin.Context) {
	var req paymentProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Orders.SubmitPaymentProof(c.Request.Context(), actorOf(c), c.Param("number"), req.TransactionID, req.ProofURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
