package handler

import (
	"depositgateway/internal/adapter/http/middleware"
	"depositgateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentsSvc    ports.PaymentsService
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	paymentHandler := NewPaymentHandler(deps.PaymentsSvc)

	// Provider webhook intake: authenticated via IP allowlist + HMAC
	// signature inside the service, not via caller identity.
	r.POST("/api/payment/webhook", paymentHandler.HandleWebhook)

	// Caller-identified routes.
	api := r.Group("/api", middleware.Identity())
	{
		api.POST("/payment/deposit", paymentHandler.CreateDeposit)
		api.GET("/payment/status/:id", paymentHandler.GetStatus)
		api.POST("/payment/reconcile/:id", paymentHandler.Reconcile)
		api.GET("/user/deposits", paymentHandler.ListUserDeposits)
	}

	return r
}
