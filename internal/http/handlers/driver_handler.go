// README: Driver listing and eligibility handlers.
package handlers

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/driver"
	"dispatch/internal/pagination"
	"dispatch/internal/types"
)

type DriverHandler struct {
	drivers    driver.Repository
	assignment *assignment.Service
	pages      pagination.Parser
	log        *slog.Logger
}

func NewDriverHandler(drivers driver.Repository, assign *assignment.Service, pages pagination.Parser, log *slog.Logger) *DriverHandler {
	return &DriverHandler{drivers: drivers, assignment: assign, pages: pages, log: log}
}

func (h *DriverHandler) List(c *gin.Context) {
	page, ok := parsePage(c, h.pages)
	if !ok {
		return
	}
	f := driver.Filter{Search: strings.TrimSpace(c.Query("search"))}
	if v := c.Query("eligible"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeValidation(c, "eligible must be a boolean")
			return
		}
		f.EligibleOnly = b
	}
	items, total, err := h.drivers.List(c.Request.Context(), f, page)
	if err != nil {
		writeDomainError(c, h.log, "driver.list", "", err)
		return
	}
	if items == nil {
		items = []driver.Driver{}
	}
	writePage(c, "drivers retrieved", items, page, total)
}

// Eligible ranks drivers around an order. radius_km is optional and defaults to the live setting.
func (h *DriverHandler) Eligible(c *gin.Context) {
	orderID := types.ID(strings.TrimSpace(c.Query("order_id")))
	if orderID == "" {
		writeValidation(c, "order_id is required")
		return
	}
	var radius float64
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			writeValidation(c, "radius_km must be a positive number")
			return
		}
		radius = r
	}
	candidates, applied, err := h.assignment.FindEligibleForOrder(c.Request.Context(), orderID, radius)
	if err != nil {
		writeDomainError(c, h.log, "driver.eligible", orderID, err)
		return
	}
	if candidates == nil {
		candidates = []driver.Candidate{}
	}
	writeOK(c, "eligible drivers retrieved", gin.H{"radius_km": applied, "drivers": candidates})
}
