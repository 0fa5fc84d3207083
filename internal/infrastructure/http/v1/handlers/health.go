package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"salonid/internal/infrastructure/storage/postgres"
)

// Version is reported by /health/info.
var Version = "0.1.0"

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	pool   *postgres.Pool
	checks map[string]Check
}

// NewHealthHandler creates a new health handler. pool may be nil when the
// service runs on the in-memory store.
func NewHealthHandler(pool *postgres.Pool, checks map[string]Check) *HealthHandler {
	if checks == nil {
		checks = make(map[string]Check)
	}
	if pool != nil {
		if _, ok := checks["database"]; !ok {
			checks["database"] = pool.Ping
		}
	}
	return &HealthHandler{pool: pool, checks: checks}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "healthy"
	}

	body := gin.H{"status": "ok", "checks": results}
	if status != http.StatusOK {
		body["status"] = "error"
	}
	c.JSON(status, body)
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":     "salonid",
		"version": Version,
	}
	if h.pool != nil {
		body["database"] = h.pool.Stats()
	}
	c.JSON(http.StatusOK, body)
}
