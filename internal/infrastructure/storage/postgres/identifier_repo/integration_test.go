package identifier_repo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"salonid/internal/core/identifier"
	"salonid/internal/domain/allocator"
	"salonid/internal/infrastructure/storage/postgres"
	"salonid/pkg/logger"
)

// startPostgres runs a throwaway PostgreSQL and returns a TxManager over it.
func startPostgres(t *testing.T) (*postgres.TxManager, *postgres.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "salonid",
				"POSTGRES_PASSWORD": "salonid",
				"POSTGRES_DB":       "salonid",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	}

	ctr, err := testcontainers.GenericContainer(ctx, req)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	endpoint, err := ctr.PortEndpoint(ctx, "5432/tcp", "")
	require.NoError(t, err)

	cfg := postgres.DefaultPoolConfig(fmt.Sprintf("postgres://salonid:salonid@%s/salonid?sslmode=disable", endpoint))
	cfg.MinConns = 1
	pool, err := postgres.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return postgres.NewTxManager(pool), pool
}

func TestPostgres_AllocatorEndToEnd(t *testing.T) {
	txm, _ := startPostgres(t)
	ctx := context.Background()

	repo, err := New(txm, WithClaimTTL(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx), "schema bootstrap is idempotent")

	svc, err := allocator.NewService(repo, repo, repo, identifier.DefaultOptions(),
		allocator.WithTxManager(txm), allocator.WithLogger(logger.Nop()))
	require.NoError(t, err)

	// Scenario 1
	first, err := svc.Generate(ctx, "cliente", nil, map[string]any{"source": "pos"})
	require.NoError(t, err)
	second, err := svc.Generate(ctx, "cliente", nil, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^CL-[0-9]{5}$`, first)
	assert.NotEqual(t, first, second)

	rec, err := svc.Lookup(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "pos", rec.Metadata["source"])

	// Scenario 3
	ok, err := svc.Validate(ctx, first, ptr("cliente"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.Validate(ctx, "CL-00000", ptr("cliente"))
	require.NoError(t, err)
	assert.False(t, ok)

	// Scenario 2
	batch, err := svc.GenerateBatch(ctx, "servicio", nil, 100, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(batch), 100)
	for _, id := range batch {
		assert.Regexp(t, `^SV-[0-9]{5}$`, id)
	}

	// Scenario 5
	require.NoError(t, svc.SetSequence(ctx, "CL", 5, nil, 90000, 90000))
	escalated, err := svc.Generate(ctx, "cliente", nil, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^CL-[0-9]{6}$`, escalated)

	report, err := svc.Stats(ctx, ptr("cliente"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.TotalIssued)
	require.Len(t, report.Sequences, 2)
	assert.Equal(t, "100", report.Sequences[0].PercentUsed.String())

	require.NoError(t, svc.ResetSequence(ctx, "SV", 5, nil))
	counters, err := repo.ListSequences(ctx, identifier.SequenceFilter{Prefix: ptr("SV")})
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Zero(t, counters[0].TotalGenerated)
}

func TestPostgres_ConcurrentGenerate(t *testing.T) {
	txm, _ := startPostgres(t)
	ctx := context.Background()

	repo, err := New(txm)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(ctx))

	svc, err := allocator.NewService(repo, repo, repo, identifier.DefaultOptions(), allocator.WithLogger(logger.Nop()))
	require.NoError(t, err)

	const workers, perWorker = 8, 25
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]struct{}{}
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				id, err := svc.Generate(ctx, "cita", ptr("sede-norte"), nil)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ids, workers*perWorker)

	counters, err := repo.ListSequences(ctx, identifier.SequenceFilter{Scope: ptr("sede-norte")})
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, int64(workers*perWorker), counters[0].TotalGenerated)
}

func TestPostgres_PurgeExpired(t *testing.T) {
	txm, _ := startPostgres(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo, err := New(txm, WithClaimTTL(time.Minute), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(ctx))

	res, err := repo.TryClaimMany(ctx, clKey, []uint64{10001, 10002, 10001})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, res)

	n, err := repo.PurgeExpired(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func ptr[T any](v T) *T { return &v }
