// README: HTTP router registration.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispatch/internal/http/handlers"
	"dispatch/internal/http/middleware"
)

const adminRole = "admin"

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log), middleware.Metrics())

	healthHandler := handlers.NewHealthHandler(deps.Health)
	r.GET("/health", healthHandler.Check)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(deps.Verifier), middleware.RequireRole(adminRole))
	if deps.RateLimit != nil {
		api.Use(deps.RateLimit)
	}

	alertHandler := handlers.NewAlertHandler(deps.Reports, deps.Pages, deps.Log)
	api.GET("/alerts/summary", alertHandler.Summary)
	api.GET("/alerts/status", alertHandler.Status)
	api.GET("/alerts/history", alertHandler.History)

	orderHandler := handlers.NewOrderHandler(deps.Orders, deps.Assignment, deps.Pages, deps.Log)
	orders := api.Group("/order-management")
	orders.GET("", orderHandler.List)
	orders.GET("/:id", orderHandler.Get)
	orders.POST("/:id/update-status", orderHandler.UpdateStatus)
	orders.POST("/:id/reassign", orderHandler.Reassign)
	orders.POST("/:id/auto-assign", orderHandler.AutoAssign)
	orders.GET("/:id/reassignments", orderHandler.Reassignments)
	orders.POST("/:id/refund-request", orderHandler.RequestRefund)

	driverHandler := handlers.NewDriverHandler(deps.Drivers, deps.Assignment, deps.Pages, deps.Log)
	api.GET("/drivers", driverHandler.List)
	api.GET("/drivers/eligible", driverHandler.Eligible)

	settingsHandler := handlers.NewSettingsHandler(deps.Assignment, deps.Log)
	api.GET("/settings/assignment-radius", settingsHandler.GetRadius)
	api.PUT("/settings/assignment-radius", settingsHandler.PutRadius)

	refundHandler := handlers.NewRefundHandler(deps.Orders, deps.Log)
	api.POST("/refunds/:id/approve", refundHandler.Approve)
	api.POST("/refunds/:id/reject", refundHandler.Reject)

	return r
}
