// README: Order management handlers: listing, detail, status updates, driver binding and refund requests.
package handlers

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/order"
	"dispatch/internal/pagination"
	"dispatch/internal/types"
)

type OrderHandler struct {
	orders     *order.Service
	assignment *assignment.Service
	pages      pagination.Parser
	log        *slog.Logger
}

func NewOrderHandler(orders *order.Service, assign *assignment.Service, pages pagination.Parser, log *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, assignment: assign, pages: pages, log: log}
}

func (h *OrderHandler) List(c *gin.Context) {
	page, ok := parsePage(c, h.pages)
	if !ok {
		return
	}
	var f order.Filter
	if v := c.Query("status"); v != "" {
		s, err := order.ParseStatus(v)
		if err != nil {
			writeValidation(c, err.Error())
			return
		}
		f.Status = s
	}
	f.Search = strings.TrimSpace(c.Query("search"))

	items, total, err := h.orders.List(c.Request.Context(), f, page)
	if err != nil {
		writeDomainError(c, h.log, "order.list", "", err)
		return
	}
	if items == nil {
		items = []order.Order{}
	}
	writePage(c, "orders retrieved", items, page, total)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.orders.GetDetail(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, h.log, "order.get", id, err)
		return
	}
	writeOK(c, "order retrieved", o)
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, "invalid json")
		return
	}
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		writeValidation(c, err.Error())
		return
	}
	o, err := h.orders.Transition(c.Request.Context(), order.TransitionCommand{OrderID: id, To: to, ActorID: actor(c)})
	if err != nil {
		writeDomainError(c, h.log, "order.update_status", id, err)
		return
	}
	writeOK(c, "order status updated", o)
}

type reassignReq struct {
	DriverID string `json:"driver_id"`
	Reason   string `json:"reason"`
}

func (h *OrderHandler) Reassign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reassignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, "invalid json")
		return
	}
	if strings.TrimSpace(req.DriverID) == "" {
		writeValidation(c, "driver_id is required")
		return
	}
	o, ev, err := h.assignment.Reassign(c.Request.Context(), assignment.ReassignCommand{
		OrderID:     id,
		NewDriverID: types.ID(strings.TrimSpace(req.DriverID)),
		Reason:      req.Reason,
		ActorID:     actor(c),
	})
	if err != nil {
		writeDomainError(c, h.log, "order.reassign", id, err)
		return
	}
	writeOK(c, "driver reassigned", gin.H{"order": o, "event": ev})
}

func (h *OrderHandler) AutoAssign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, picked, err := h.assignment.AutoAssign(c.Request.Context(), assignment.AutoAssignCommand{OrderID: id, ActorID: actor(c)})
	if err != nil {
		writeDomainError(c, h.log, "order.auto_assign", id, err)
		return
	}
	writeOK(c, "driver assigned", gin.H{"order": o, "driver": picked})
}

func (h *OrderHandler) Reassignments(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	events, err := h.orders.ListReassignments(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, h.log, "order.reassignments", id, err)
		return
	}
	if events == nil {
		events = []order.ReassignmentEvent{}
	}
	writeOK(c, "reassignments retrieved", events)
}

type reasonReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) RequestRefund(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reasonReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeValidation(c, "invalid json")
			return
		}
	}
	o, err := h.orders.RequestRefund(c.Request.Context(), order.RefundRequestCommand{OrderID: id, Reason: req.Reason, ActorID: actor(c)})
	if err != nil {
		writeDomainError(c, h.log, "order.refund_request", id, err)
		return
	}
	writeOK(c, "refund requested", o)
}
