package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetUserID(ctx))
	assert.False(t, HasRole(ctx, "admin"))

	ctx = WithUser(ctx, &UserContext{UserID: "ops-1", Roles: []string{"admin"}})
	assert.Equal(t, "ops-1", GetUserID(ctx))
	assert.True(t, HasRole(ctx, "admin"))
	assert.False(t, HasRole(ctx, "viewer"))
}

func TestTraceContext(t *testing.T) {
	tc := NewTraceContext()
	ctx := WithTrace(context.Background(), tc)

	assert.Equal(t, tc.TraceID, GetTraceID(ctx))
	assert.Equal(t, tc.RequestID, GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
	assert.NotEmpty(t, GetTraceID(context.Background()))
}
