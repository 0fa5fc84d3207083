// Package main is the entry point for the salonid API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"salonid/internal/app"
	"salonid/internal/config"
	"salonid/internal/domain/auth"
	v1 "salonid/internal/infrastructure/http/v1"
	"salonid/internal/infrastructure/http/v1/handlers"
	"salonid/pkg/logger"
	"salonid/pkg/tracing"
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

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting salonid server", "env", cfg.AppEnv, "version", handlers.Version)

	// --- Tracing ---
	if cfg.OTELStdout {
		shutdown, err := tracing.InitStdout("salonid", handlers.Version, nil)
		if err != nil {
			log.Fatalw("failed to initialize tracing", "error", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	// --- Allocator and stores ---
	application, err := app.Build(ctx, cfg, log, app.Options{
		Registerer:   prometheus.DefaultRegisterer,
		EnsureSchema: true,
	})
	if err != nil {
		application.Close()
		log.Fatalw("failed to build allocator", "error", err)
	}
	defer application.Close()

	stopMonitor := app.StartRedisMonitor(ctx, application)
	defer stopMonitor()

	// --- JWT Service ---
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Service:      application.Service,
		Pool:         application.Pool,
		HealthChecks: application.HealthChecks(),
		Logger:       log,
		JWTValidator: jwtService,
		Metrics:      application.Metrics,
		Debug:        cfg.Development(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
