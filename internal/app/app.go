// Package app assembles the allocator and its stores from configuration.
// It is shared by cmd/server, cmd/worker and cmd/idctl.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"salonid/internal/config"
	"salonid/internal/core/identifier"
	"salonid/internal/domain/allocator"
	"salonid/internal/infrastructure/cache"
	"salonid/internal/infrastructure/http/v1/handlers"
	"salonid/internal/infrastructure/metrics"
	"salonid/internal/infrastructure/storage/memory"
	"salonid/internal/infrastructure/storage/postgres"
	"salonid/internal/infrastructure/storage/postgres/identifier_repo"
	"salonid/pkg/logger"
)

// App holds the assembled components. Pool, Repo and Redis are nil when
// the corresponding backend is not configured.
type App struct {
	Config  *config.Config
	Service *allocator.Service
	Metrics *metrics.Metrics

	Pool  *postgres.Pool
	Repo  *identifier_repo.Repo
	Redis *redis.Client

	closers []func()
}

// Options tune Build.
type Options struct {
	// Registerer receives allocator metrics; nil disables them.
	Registerer prometheus.Registerer

	// EnsureSchema bootstraps the Postgres schema on start.
	EnsureSchema bool

	// PoolMaxConns overrides DB_MAX_CONNS.
	PoolMaxConns int32
}

// Build connects the configured stores and creates the allocator service.
// Call Close when done, also after a failed Build.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg}

	allocOpts, err := cfg.AllocatorOptions()
	if err != nil {
		return a, fmt.Errorf("allocator options: %w", err)
	}
	prefixes, err := cfg.PrefixTable()
	if err != nil {
		return a, err
	}

	var (
		sequences identifier.SequenceStore
		guard     identifier.CollisionGuard
		registry  identifier.Registry
	)
	serviceOpts := []allocator.Option{
		allocator.WithLogger(log),
		allocator.WithPrefixTable(prefixes),
	}

	switch cfg.Storage {
	case config.StorageMemory:
		store := memory.New(memory.WithClaimTTL(cfg.ID.ClaimTTL))
		sequences, guard, registry = store, store, store
		log.Warnw("using in-memory store; identifiers are lost on exit")

	default:
		poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
		if opts.PoolMaxConns > 0 {
			poolCfg.MaxConns = opts.PoolMaxConns
		}
		if poolCfg.MinConns > poolCfg.MaxConns {
			poolCfg.MinConns = poolCfg.MaxConns
		}
		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return a, err
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
		log.Infow("database connection established", "max_conns", poolCfg.MaxConns)

		txManager := postgres.NewTxManager(pool)
		repo, err := identifier_repo.New(txManager, identifier_repo.WithClaimTTL(cfg.ID.ClaimTTL))
		if err != nil {
			return a, err
		}
		a.Repo = repo
		if opts.EnsureSchema {
			if err := repo.EnsureSchema(ctx); err != nil {
				return a, fmt.Errorf("ensure schema: %w", err)
			}
		}

		sequences, guard, registry = repo, repo, repo
		serviceOpts = append(serviceOpts, allocator.WithTxManager(txManager))
	}

	if cfg.ClaimBackend == config.ClaimBackendRedis {
		rc, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return a, err
		}
		a.Redis = rc
		a.closers = append(a.closers, func() { _ = rc.Close() })
		guard = cache.NewClaimGuard(rc, cfg.ID.ClaimTTL)
		log.Infow("using redis claim guard", "claim_ttl", cfg.ID.ClaimTTL)
	}

	if opts.Registerer != nil {
		a.Metrics = metrics.New(opts.Registerer)
		serviceOpts = append(serviceOpts, allocator.WithObserver(a.Metrics))
	}

	svc, err := allocator.NewService(sequences, guard, registry, allocOpts, serviceOpts...)
	if err != nil {
		return a, err
	}
	a.Service = svc

	log.Infow("allocator ready",
		"storage", cfg.Storage,
		"claims", cfg.ClaimBackend,
		"initial_length", allocOpts.InitialLength,
		"max_length", allocOpts.MaxLength,
		"dispersion", allocOpts.Strategy.String(),
	)
	return a, nil
}

// HealthChecks returns readiness probes for the connected backends.
// The database probe is added by the health handler itself.
func (a *App) HealthChecks() map[string]handlers.Check {
	checks := make(map[string]handlers.Check)
	if a.Redis != nil {
		rc := a.Redis
		checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}
	return checks
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// StartRedisMonitor pings the claim guard's Redis in the background.
func StartRedisMonitor(ctx context.Context, a *App) func() {
	if a.Redis == nil {
		return func() {}
	}
	return cache.StartHealthMonitor(ctx, a.Redis, 0)
}
