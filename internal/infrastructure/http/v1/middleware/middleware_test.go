package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"salonid/internal/core/apperror"
	appctx "salonid/internal/core/context"
	"salonid/pkg/logger"
)

type stubValidator struct {
	user *appctx.UserContext
	err  error
}

func (v stubValidator) ValidateToken(string) (*appctx.UserContext, error) {
	return v.user, v.err
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), Trace(), Logger(logger.Nop()), ErrorHandler())
	r.GET("/x", handlers...)
	return r
}

func serve(r *gin.Engine, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTrace_PropagatesRequestID(t *testing.T) {
	var seen string
	r := newEngine(func(c *gin.Context) {
		seen = appctx.GetRequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := serve(r, map[string]string{HeaderRequestID: "req-42"})
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
	assert.NotEmpty(t, w.Header().Get(HeaderTraceID))
}

func TestErrorHandler(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		_ = c.Error(apperror.NewCapacityExhausted("CL", "", 10))
	})
	w := serve(r, nil)
	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeCapacityExhausted)

	r = newEngine(func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})
	w = serve(r, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRecovery(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		panic("kaboom")
	})
	w := serve(r, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeInternal)
	assert.NotContains(t, w.Body.String(), "kaboom")
}

func TestAuthAndRequireRole(t *testing.T) {
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	r := newEngine(Auth(stubValidator{err: errors.New("bad")}), RequireRole("admin"), ok)
	assert.Equal(t, http.StatusUnauthorized, serve(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, map[string]string{"Authorization": "Basic abc"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, map[string]string{"Authorization": "Bearer abc"}).Code)

	viewer := &appctx.UserContext{UserID: "u1", Roles: []string{"viewer"}}
	r = newEngine(Auth(stubValidator{user: viewer}), RequireRole("admin"), ok)
	assert.Equal(t, http.StatusForbidden, serve(r, map[string]string{"Authorization": "Bearer abc"}).Code)

	admin := &appctx.UserContext{UserID: "u2", Roles: []string{"admin"}}
	r = newEngine(Auth(stubValidator{user: admin}), RequireRole("admin"), ok)
	assert.Equal(t, http.StatusNoContent, serve(r, map[string]string{"Authorization": "bearer abc"}).Code)
}
