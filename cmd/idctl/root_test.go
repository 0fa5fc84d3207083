package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonid/internal/app"
	"salonid/internal/config"
	"salonid/internal/domain/auth"
	"salonid/pkg/logger"
)

// sharedBuild keeps one in-memory application across invocations.
func sharedBuild(t *testing.T) buildFunc {
	t.Helper()
	var shared *app.App
	return func(ctx context.Context, cfg *config.Config, log *logger.Logger, opts app.Options) (*app.App, error) {
		if shared == nil {
			a, err := app.Build(ctx, cfg, log, opts)
			if err != nil {
				return a, err
			}
			shared = a
		}
		return shared, nil
	}
}

func run(t *testing.T, build buildFunc, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(build)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--memory"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func setEnv(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "idctl-test-secret-0123456789")
}

func TestGenerateValidateLookup(t *testing.T) {
	setEnv(t)
	build := sharedBuild(t)

	out, _, err := run(t, build, "generate", "cliente", "--meta", "origin=import")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	assert.Regexp(t, `^CL-[0-9]{5}$`, id)

	out, _, err = run(t, build, "validate", id, "--entity", "cliente")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	_, _, err = run(t, build, "validate", id, "--entity", "cita")
	assert.Error(t, err)

	out, _, err = run(t, build, "lookup", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"entityType": "cliente"`)
	assert.Contains(t, out, `"origin": "import"`)
}

func TestBatchAndStats(t *testing.T) {
	setEnv(t)
	build := sharedBuild(t)

	out, _, err := run(t, build, "batch", "cita", "20", "--scope", "sede-1")
	require.NoError(t, err)
	lines := strings.Fields(out)
	assert.NotEmpty(t, lines)
	for _, id := range lines {
		assert.True(t, strings.HasPrefix(id, "CT-"), id)
	}

	out, _, err = run(t, build, "stats", "--scope", "sede-1")
	require.NoError(t, err)
	assert.Contains(t, out, "sede-1-CT-5")
	assert.Contains(t, out, "cita")

	_, _, err = run(t, build, "batch", "cita", "many")
	assert.Error(t, err)
}

func TestResetRequiresConfirmation(t *testing.T) {
	setEnv(t)
	build := sharedBuild(t)

	_, _, err := run(t, build, "reset", "CL", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out, _, err := run(t, build, "reset", "cl", "5", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "CL-5 reset")
}

func TestSelfcheckEntitiesPurge(t *testing.T) {
	setEnv(t)
	build := sharedBuild(t)

	out, _, err := run(t, build, "selfcheck")
	require.NoError(t, err)
	assert.Contains(t, out, "NT-")

	out, _, err = run(t, build, "entities")
	require.NoError(t, err)
	assert.Contains(t, out, "profesional")

	out, _, err = run(t, build, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "purged 0 expired claims")

	out, _, err = run(t, build, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to migrate")
}

func TestToken(t *testing.T) {
	setEnv(t)

	out, _, err := run(t, nil, "token", "--user", "ops")
	require.NoError(t, err)

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig("idctl-test-secret-0123456789"))
	user, err := jwtService.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", user.UserID)
	assert.Equal(t, []string{auth.RoleAdmin}, user.Roles)
}
