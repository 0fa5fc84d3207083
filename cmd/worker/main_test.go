package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonid/internal/core/identifier"
	"salonid/internal/domain/allocator"
	"salonid/internal/infrastructure/storage/memory"
	"salonid/pkg/logger"
)

func TestPurgeWorker_Purge(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	store := memory.New(memory.WithClaimTTL(time.Minute), memory.WithClock(clock))
	svc, err := allocator.NewService(store, store, store, identifier.DefaultOptions(),
		allocator.WithLogger(logger.Nop()), allocator.WithClock(clock))
	require.NoError(t, err)

	_, err = svc.GenerateBatch(context.Background(), "cita", nil, 10, nil)
	require.NoError(t, err)
	now = base.Add(time.Hour)

	w := NewPurgeWorker(svc, nil, time.Hour, logger.Nop())
	w.purge(context.Background())

	n, err := store.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, n, "worker already purged every expired claim")
}

func TestPurgeWorker_StopsOnCancel(t *testing.T) {
	store := memory.New()
	svc, err := allocator.NewService(store, store, store, identifier.DefaultOptions(),
		allocator.WithLogger(logger.Nop()))
	require.NoError(t, err)

	w := NewPurgeWorker(svc, nil, 10*time.Millisecond, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
