package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

type AppConfig struct {
	Port          string
	Storage       string
	SweepInterval time.Duration
}

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
}

// Load reads configuration from the environment, optionally seeded from a
// .env file. Postgres settings are only required when STORAGE is postgres.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	cfg.App.Port = envOr("APP_PORT", "8080")
	cfg.App.Storage = envOr("STORAGE", StoragePostgres)
	if cfg.App.Storage != StorageMemory && cfg.App.Storage != StoragePostgres {
		return nil, fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, cfg.App.Storage)
	}

	sweepInterval, err := time.ParseDuration(envOr("SWEEP_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	cfg.App.SweepInterval = sweepInterval

	if cfg.App.Storage == StoragePostgres {
		for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
			if os.Getenv(key) == "" {
				return nil, fmt.Errorf("%s is required", key)
			}
		}
		cfg.Postgres.Host = os.Getenv("DB_HOST")
		cfg.Postgres.Port = os.Getenv("DB_PORT")
		cfg.Postgres.User = os.Getenv("DB_USER")
		cfg.Postgres.Password = os.Getenv("DB_PASSWORD")
		cfg.Postgres.DBName = os.Getenv("DB_NAME")
		cfg.Postgres.SSLMode = envOr("DB_SSLMODE", "disable")
		cfg.Postgres.MigrationsPath = envOr("DB_MIGRATIONS_PATH", "migrations")

		maxConns, err := strconv.ParseInt(envOr("DB_MAX_CONNS", "10"), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
		}
		cfg.Postgres.MaxConns = int32(maxConns)

		minConns, err := strconv.ParseInt(envOr("DB_MIN_CONNS", "2"), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
		}
		cfg.Postgres.MinConns = int32(minConns)

		maxConnLifetime, err := time.ParseDuration(envOr("DB_MAX_CONN_LIFETIME", "30m"))
		if err != nil {
			return nil, fmt.Errorf("invalid DB_MAX_CONN_LIFETIME: %w", err)
		}
		cfg.Postgres.MaxConnLifetime = maxConnLifetime
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
