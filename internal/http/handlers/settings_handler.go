// README: Runtime settings handlers.
package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/assignment"
)

type SettingsHandler struct {
	assignment *assignment.Service
	log        *slog.Logger
}

func NewSettingsHandler(assign *assignment.Service, log *slog.Logger) *SettingsHandler {
	return &SettingsHandler{assignment: assign, log: log}
}

type radiusBody struct {
	RadiusKm *float64 `json:"radius_km"`
}

func (h *SettingsHandler) GetRadius(c *gin.Context) {
	km, err := h.assignment.Radius(c.Request.Context())
	if err != nil {
		writeDomainError(c, h.log, "settings.radius.get", "", err)
		return
	}
	writeOK(c, "assignment radius retrieved", radiusBody{RadiusKm: &km})
}

func (h *SettingsHandler) PutRadius(c *gin.Context) {
	var req radiusBody
	if err := c.ShouldBindJSON(&req); err != nil || req.RadiusKm == nil {
		writeValidation(c, "radius_km is required")
		return
	}
	if err := h.assignment.SetRadius(c.Request.Context(), *req.RadiusKm); err != nil {
		writeDomainError(c, h.log, "settings.radius.put", "", err)
		return
	}
	writeOK(c, "assignment radius updated", req)
}
