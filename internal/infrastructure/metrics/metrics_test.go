package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Issued("cliente", 1)
	m.Issued("cliente", 99)
	m.Collision("CL", "claim")
	m.Escalated("CL", 5)
	m.Failed("RETRIES_EXHAUSTED")

	assert.Equal(t, float64(100), testutil.ToFloat64(m.issued.WithLabelValues("cliente")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.collisions.WithLabelValues("CL", "claim")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.escalated.WithLabelValues("CL", "5")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("RETRIES_EXHAUSTED")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := New(reg)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/v1/ids/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", Handler(reg))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ids/CL-12345", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.httpRequests.WithLabelValues(http.MethodGet, "/api/v1/ids/:id", "204")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
