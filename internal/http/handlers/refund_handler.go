// README: Refund approval handlers.
package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/order"
)

type RefundHandler struct {
	orders *order.Service
	log    *slog.Logger
}

func NewRefundHandler(orders *order.Service, log *slog.Logger) *RefundHandler {
	return &RefundHandler{orders: orders, log: log}
}

func (h *RefundHandler) Approve(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.orders.ApproveRefund(c.Request.Context(), order.RefundCommand{OrderID: id, ActorID: actor(c)})
	if err != nil {
		writeDomainError(c, h.log, "refund.approve", id, err)
		return
	}
	writeOK(c, "refund approved", o)
}

func (h *RefundHandler) Reject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reasonReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, "invalid json")
		return
	}
	o, err := h.orders.RejectRefund(c.Request.Context(), order.RefundCommand{OrderID: id, Reason: req.Reason, ActorID: actor(c)})
	if err != nil {
		writeDomainError(c, h.log, "refund.reject", id, err)
		return
	}
	writeOK(c, "refund rejected", o)
}
