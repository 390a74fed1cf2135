package handler

import (
	"net/http"

	"go-gin-cinema-booking/internal/metrics"
	"go-gin-cinema-booking/internal/middleware"
	"go-gin-cinema-booking/internal/service"

	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	JWTSecret     string
	WebhookSecret string
}

// NewRouter 組裝所有路由；m 可為 nil，此時不提供 /metrics
func NewRouter(
	scheduler service.SchedulerService,
	coordinator service.ReservationCoordinator,
	m *metrics.Metrics,
	cfg RouterConfig,
) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(m), gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	bookingHandler := NewBookingHandler(coordinator)
	showtimeHandler := NewShowtimeHandler(scheduler)

	api := r.Group("/api/v1")
	bookingHandler.RegisterWebhookRoutes(api, middleware.WebhookSecret(cfg.WebhookSecret))

	authed := api.Group("")
	authed.Use(middleware.Identity(cfg.JWTSecret))
	bookingHandler.RegisterRoutes(authed)
	showtimeHandler.RegisterRoutes(authed, middleware.RequireAdmin())

	return r
}
