// README: Liveness and dependency health handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/health"
)

type HealthHandler struct {
	health *health.Service
}

func NewHealthHandler(svc *health.Service) *HealthHandler {
	return &HealthHandler{health: svc}
}

func (h *HealthHandler) Check(c *gin.Context) {
	r := h.health.Check(c.Request.Context())
	if !r.Healthy() {
		writeJSON(c, http.StatusServiceUnavailable, "degraded", r)
		return
	}
	writeOK(c, "ok", r)
}
