package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonid/internal/config"
	"salonid/pkg/logger"
)

func TestBuild_Memory(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ID_DISPERSION", "feistel")

	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := Build(context.Background(), cfg, logger.Nop(), Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Nil(t, a.Pool)
	assert.Nil(t, a.Redis)
	require.NotNil(t, a.Metrics)
	assert.Empty(t, a.HealthChecks())

	id, err := a.Service.Generate(context.Background(), "cliente", nil, nil)
	require.NoError(t, err)
	ok, err := a.Service.Validate(context.Background(), id, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuild_BadPrefixFile(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("ID_PREFIX_FILE", "/nonexistent/prefixes.yaml")

	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := Build(context.Background(), cfg, logger.Nop(), Options{})
	assert.Error(t, err)
	a.Close()
}
