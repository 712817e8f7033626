package handler

import (
	"agentpay/internal/adapter/http/middleware"
	redisStore "agentpay/internal/adapter/storage/redis"
	"agentpay/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Directory      ports.AccountDirectory
	Payments       ports.PaymentLedger
	Dispatcher     ports.PaymentDispatcher
	Privacy        ports.PrivacyTokenIssuer
	TokenSvc       ports.TokenService         // nil = bearer tokens disabled
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Mode           string // gin mode; empty = release
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.Privacy, deps.HealthCheckers...))

	docs := r.Group("/docs")
	{
		docs.GET("", APIDocs)
		docs.GET("/spec", APISpec)
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		return middleware.RateLimiter(deps.RateLimitStore, group, rules[group], deps.Logger)
	}

	// Bearer tokens are optional everywhere; when present they identify the caller.
	v1 := r.Group("/api/v1", middleware.AgentAuth(deps.TokenSvc, deps.Logger))

	agentHandler := NewAgentHandler(deps.Directory, deps.TokenSvc, deps.Logger)
	agents := v1.Group("/agents")
	{
		agents.POST("", rl("agents_register"), agentHandler.Register)
		agents.GET("", rl("reads"), agentHandler.List)
		agents.GET("/:agentId", rl("reads"), agentHandler.Get)
		agents.GET("/:agentId/balance", rl("reads"), agentHandler.Balance)
		agents.POST("/:agentId/deactivate", rl("agents_write"), agentHandler.Deactivate)
	}

	paymentHandler := NewPaymentHandler(deps.Dispatcher, deps.Payments)
	payments := v1.Group("/payments")
	{
		payments.POST("", rl("payments_send"), paymentHandler.Send)
		payments.GET("/:paymentId", rl("reads"), paymentHandler.Get)
		payments.GET("/agent/:agentId", rl("reads"), paymentHandler.ListForAgent)
	}

	if deps.Privacy != nil {
		privacyHandler := NewPrivacyHandler(deps.Privacy)
		v1.POST("/privacy/verify", rl("privacy_verify"), privacyHandler.Verify)
	}

	return r
}
