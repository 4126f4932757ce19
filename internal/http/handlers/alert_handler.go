// README: Operational alert reporting handlers.
package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/alertstate"
	"dispatch/internal/modules/reporting"
	"dispatch/internal/pagination"
)

type AlertHandler struct {
	reports *reporting.Service
	pages   pagination.Parser
	log     *slog.Logger
}

func NewAlertHandler(reports *reporting.Service, pages pagination.Parser, log *slog.Logger) *AlertHandler {
	return &AlertHandler{reports: reports, pages: pages, log: log}
}

func (h *AlertHandler) Summary(c *gin.Context) {
	s, err := h.reports.Summary(c.Request.Context())
	if err != nil {
		writeDomainError(c, h.log, "alerts.summary", "", err)
		return
	}
	writeOK(c, "alert summary retrieved", s)
}

func (h *AlertHandler) Status(c *gin.Context) {
	st, err := h.reports.Status(c.Request.Context())
	if err != nil {
		writeDomainError(c, h.log, "alerts.status", "", err)
		return
	}
	writeOK(c, "alert status retrieved", st)
}

func (h *AlertHandler) History(c *gin.Context) {
	page, ok := parsePage(c, h.pages)
	if !ok {
		return
	}
	var t alertstate.Type
	if v := c.Query("type"); v != "" {
		parsed, err := alertstate.ParseType(v)
		if err != nil {
			writeValidation(c, err.Error())
			return
		}
		t = parsed
	}
	runs, total, err := h.reports.History(c.Request.Context(), t, page)
	if err != nil {
		writeDomainError(c, h.log, "alerts.history", "", err)
		return
	}
	if runs == nil {
		runs = []alertstate.Run{}
	}
	writePage(c, "alert history retrieved", runs, page, total)
}
