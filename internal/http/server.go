// README: API gateway; holds module services and builds the HTTP handler.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/infra"
	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/health"
	"dispatch/internal/modules/order"
	"dispatch/internal/modules/reporting"
	"dispatch/internal/pagination"
)

type ServerDeps struct {
	Orders     *order.Service
	Drivers    driver.Repository
	Assignment *assignment.Service
	Reports    *reporting.Service
	Health     *health.Service
	Verifier   infra.TokenVerifier
	// RateLimit is applied to /api when set.
	RateLimit gin.HandlerFunc
	Pages     pagination.Parser
	Log       *slog.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	return NewRouter(s.deps)
}
