// Package main is the entry point for the salonid background worker.
// It purges expired identifier claims and reports pool statistics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"salonid/internal/app"
	"salonid/internal/config"
	"salonid/internal/domain/allocator"
	"salonid/internal/infrastructure/storage/postgres"
	"salonid/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting salonid worker")

	application, err := app.Build(ctx, cfg, log, app.Options{PoolMaxConns: 2})
	if err != nil {
		application.Close()
		log.Fatalw("failed to build allocator", "error", err)
	}
	defer application.Close()

	worker := NewPurgeWorker(application.Service, application.Pool, cfg.PurgeInterval, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// PurgeWorker periodically deletes expired claims. Redis claims expire
// natively, so with the Redis guard each tick is a no-op.
type PurgeWorker struct {
	service  *allocator.Service
	pool     *postgres.Pool
	interval time.Duration
	log      *logger.Logger
}

// NewPurgeWorker creates a worker. pool may be nil.
func NewPurgeWorker(service *allocator.Service, pool *postgres.Pool, interval time.Duration, log *logger.Logger) *PurgeWorker {
	return &PurgeWorker{
		service:  service,
		pool:     pool,
		interval: interval,
		log:      log.WithComponent("worker"),
	}
}

// Run purges once immediately and then on every tick until ctx is done.
func (w *PurgeWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Minute)
	defer statsTicker.Stop()

	w.purge(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.purge(ctx)
		case <-statsTicker.C:
			if w.pool != nil {
				w.pool.LogStats(ctx)
			}
		}
	}
}

func (w *PurgeWorker) purge(ctx context.Context) {
	start := time.Now()
	n, err := w.service.PurgeExpiredClaims(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Errorw("failed to purge expired claims", "error", err)
		}
		return
	}
	if n > 0 {
		w.log.Infow("purged expired claims", "count", n, "took_ms", time.Since(start).Milliseconds())
	}
}
