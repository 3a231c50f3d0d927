package api

import (
	"context"
	"net/http"

	"food-order-service/internal/models"
	"food-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) requestReturn(c *gin.Context) {
	var req service.ReturnInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Returns.RequestReturn(c.Request.Context(), actorOf(c), c.Param("number"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order.ReturnRequest)
}

type reviewReturnRequest struct {
	Status models.ReturnStatus `json:"status" binding:"required,oneof=approved rejected completed"`
	Note   string              `json:"note" binding:"max=1000"`
}

func (h *Handler) reviewReturn(c *gin.Context) {
	var req reviewReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Returns.ReviewReturn(c.Request.Context(), actorOf(c), c.Param("number"), req.Status, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.ReturnRequest)
}

func (h *Handler) requestRefund(c *gin.Context) {
	var req service.RefundInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	refund, err := h.Returns.RequestRefund(c.Request.Context(), actorOf(c), c.Param("number"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, refund)
}

func (h *Handler) getRefund(c *gin.Context) {
	refund, err := h.Returns.GetRefund(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}

func (h *Handler) listRefunds(c *gin.Context) {
	refunds, err := h.Returns.ListRefunds(c.Request.Context(), actorOf(c), models.RefundStatus(c.Query("status")), pageOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": refunds})
}

func (h *Handler) approveRefund(c *gin.Context) {
	h.refundStep(c, h.Returns.ApproveRefund)
}

func (h *Handler) processRefund(c *gin.Context) {
	h.refundStep(c, h.Returns.ProcessRefund)
}

func (h *Handler) completeRefund(c *gin.Context) {
	h.refundStep(c, h.Returns.CompleteRefund)
}

type rejectRefundRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

func (h *Handler) rejectRefund(c *gin.Context) {
	var req rejectRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	refund, err := h.Returns.RejectRefund(c.Request.Context(), actorOf(c), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}

func (h *Handler) refundStep(c *gin.Context, step func(ctx context.Context, actor service.Actor, id string) (*models.Refund, error)) {
	refund, err := step(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}
