// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"salonid/internal/domain/allocator"
	"salonid/internal/domain/auth"
	"salonid/internal/infrastructure/http/v1/handlers"
	"salonid/internal/infrastructure/http/v1/middleware"
	"salonid/internal/infrastructure/metrics"
	"salonid/internal/infrastructure/storage/postgres"
	"salonid/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Service is the identifier allocator.
	Service *allocator.Service

	// Pool is used by health checks; nil for the in-memory store.
	Pool *postgres.Pool

	// HealthChecks are extra readiness probes (e.g. redis).
	HealthChecks map[string]handlers.Check

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator guards admin routes.
	JWTValidator middleware.JWTValidator

	// Metrics records HTTP metrics when set.
	Metrics *metrics.Metrics

	// Gatherer backs /metrics; defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer

	// Debug keeps gin in debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}
	router.GET("/metrics", metrics.Handler(cfg.Gatherer))

	v1 := router.Group("/api/v1")
	registerIDRoutes(v1, cfg)

	return router
}

// registerIDRoutes registers allocator endpoints.
func registerIDRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	handler := handlers.NewIDHandler(handlers.NewBaseHandler(), cfg.Service)

	ids := rg.Group("/ids")
	{
		ids.POST("", handler.Generate)
		ids.POST("/batch", handler.GenerateBatch)
		ids.GET("/stats", handler.Stats)
		ids.GET("/:id", handler.Get)
		ids.GET("/:id/validate", handler.Validate)
	}
	rg.GET("/entities", handler.Entities)

	if cfg.JWTValidator == nil {
		return
	}
	admin := rg.Group("/admin")
	admin.Use(middleware.Auth(cfg.JWTValidator))
	admin.Use(middleware.RequireRole(auth.RoleAdmin))
	{
		admin.DELETE("/sequences/:prefix/:digits", handler.ResetSequence)
		admin.POST("/selfcheck", handler.SelfCheck)
	}
}
