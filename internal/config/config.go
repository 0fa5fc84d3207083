// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"salonid/internal/core/identifier"
	"salonid/pkg/logger"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Claim backends.
const (
	ClaimBackendPostgres = "postgres"
	ClaimBackendRedis    = "redis"
)

// Config is the full process configuration shared by cmd/server, cmd/worker and cmd/idctl.
type Config struct {
	AppEnv  string `validate:"required,oneof=development staging production test"`
	AppPort string `validate:"required,numeric"`

	Storage      string `validate:"oneof=postgres memory"`
	DatabaseURL  string `validate:"required_if=Storage postgres"`
	DBMaxConns   int    `validate:"gte=1"`
	RedisURL     string `validate:"required_if=ClaimBackend redis"`
	ClaimBackend string `validate:"oneof=postgres redis"`

	ID IDConfig

	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string

	JWTSecret  string `validate:"required,min=16"`
	OTELStdout bool

	PurgeInterval time.Duration `validate:"gte=1s"`
}

// IDConfig configures the allocator.
type IDConfig struct {
	InitialLength int           `validate:"gte=1,lte=19"`
	MaxLength     int           `validate:"gtefield=InitialLength,lte=19"`
	MaxRetries    int           `validate:"gte=1"`
	MaxBatch      int           `validate:"gte=1"`
	Dispersion    string        `validate:"oneof=multiplicative feistel"`
	ClaimTTL      time.Duration `validate:"gte=1m"`
	PrefixFile    string
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", "8080"),

		Storage:      strings.ToLower(getEnv("STORAGE_BACKEND", StoragePostgres)),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DBMaxConns:   getEnvInt("DB_MAX_CONNS", 20),
		RedisURL:     os.Getenv("REDIS_URL"),
		ClaimBackend: strings.ToLower(getEnv("CLAIM_BACKEND", ClaimBackendPostgres)),

		ID: IDConfig{
			InitialLength: getEnvInt("ID_INITIAL_LENGTH", identifier.DefaultInitialLength),
			MaxLength:     getEnvInt("ID_MAX_LENGTH", identifier.DefaultMaxLength),
			MaxRetries:    getEnvInt("ID_MAX_RETRIES", identifier.DefaultMaxRetries),
			MaxBatch:      getEnvInt("ID_MAX_BATCH", identifier.DefaultMaxBatch),
			Dispersion:    strings.ToLower(getEnv("ID_DISPERSION", "multiplicative")),
			ClaimTTL:      getEnvDuration("ID_CLAIM_TTL", 8760*time.Hour),
			PrefixFile:    os.Getenv("ID_PREFIX_FILE"),
		},

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:  os.Getenv("LOG_FILE"),

		JWTSecret:  getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		OTELStdout: getEnvBool("OTEL_STDOUT", false),

		PurgeInterval: getEnvDuration("PURGE_INTERVAL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.AppEnv == "production" && c.JWTSecret == "dev-secret-change-in-production" {
		return fmt.Errorf("invalid configuration: JWT_SECRET must be set in production")
	}
	return nil
}

// Development reports whether the process runs in development mode.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// Logger returns the logger configuration.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:       c.LogLevel,
		Development: c.Development(),
		FilePath:    c.LogFile,
		MaxSizeMB:   getEnvInt("LOG_MAX_SIZE_MB", 100),
		MaxBackups:  getEnvInt("LOG_MAX_BACKUPS", 5),
		MaxAgeDays:  getEnvInt("LOG_MAX_AGE_DAYS", 30),
	}
}

// AllocatorOptions converts the ID section into allocator options.
func (c *Config) AllocatorOptions() (identifier.Options, error) {
	strategy, err := identifier.ParseStrategy(c.ID.Dispersion)
	if err != nil {
		return identifier.Options{}, err
	}
	opts := identifier.Options{
		InitialLength: c.ID.InitialLength,
		MaxLength:     c.ID.MaxLength,
		MaxRetries:    c.ID.MaxRetries,
		MaxBatch:      c.ID.MaxBatch,
		Strategy:      strategy,
	}
	return opts, opts.Validate()
}

// PrefixTable loads ID_PREFIX_FILE, or returns the built-in table when unset.
func (c *Config) PrefixTable() (*identifier.PrefixTable, error) {
	if c.ID.PrefixFile == "" {
		return identifier.DefaultPrefixTable(), nil
	}
	return identifier.LoadPrefixTable(c.ID.PrefixFile)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
