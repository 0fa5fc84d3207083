// Package cache provides Redis-backed infrastructure: the client bootstrap
// and a CollisionGuard using SET NX with native key expiry.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"salonid/pkg/logger"
)

// NewRedisClient parses url, connects and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rc := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info(ctx, "redis connection established", "addr", opt.Addr, "db", opt.DB)
	return rc, nil
}

// StartHealthMonitor pings Redis every interval until ctx is done or the
// returned stop function is called.
func StartHealthMonitor(parent context.Context, client redis.UniversalClient, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn(ctx, "redis healthcheck failed", "error", err)
				}
				c()
			}
		}
	}()
	return cancel
}
