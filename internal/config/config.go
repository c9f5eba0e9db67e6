// Package config loads server settings from SWITCHBOARD_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/alfredjeanlab/switchboard/internal/defects"
)

// Storage backends accepted by SWITCHBOARD_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Backend     string // SWITCHBOARD_BACKEND (memory|file|postgres|sqlite, default "file")
	DatabaseURL string // SWITCHBOARD_DATABASE_URL (required for postgres)
	SQLitePath  string // SWITCHBOARD_SQLITE_PATH (default "switchboard.db")
	DataDir     string // SWITCHBOARD_DATA_DIR (file backend, default "data")
	DefectsPath string // SWITCHBOARD_DEFECTS_PATH (default "defects")

	GRPCAddr  string // SWITCHBOARD_GRPC_ADDR (default ":9090")
	HTTPAddr  string // SWITCHBOARD_HTTP_ADDR (default ":8080")
	AuthToken string // SWITCHBOARD_AUTH_TOKEN (optional, empty = auth disabled)
	NATSURL   string // SWITCHBOARD_NATS_URL (optional, empty = no events)

	RedisURL string        // SWITCHBOARD_REDIS_URL (optional, empty = in-process locks)
	LockTTL  time.Duration // SWITCHBOARD_LOCK_TTL (default 10s)

	// Sync settings
	SyncInterval   time.Duration // SWITCHBOARD_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // SWITCHBOARD_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // SWITCHBOARD_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // SWITCHBOARD_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // SWITCHBOARD_SYNC_S3_KEY (default "switchboard/backup.jsonl")
	SyncGitRepo    string        // SWITCHBOARD_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // SWITCHBOARD_SYNC_GIT_FILE (default "switchboard.jsonl")
	SyncGitBranch  string        // SWITCHBOARD_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		Backend:        envOrDefault("SWITCHBOARD_BACKEND", BackendFile),
		DatabaseURL:    os.Getenv("SWITCHBOARD_DATABASE_URL"),
		SQLitePath:     envOrDefault("SWITCHBOARD_SQLITE_PATH", "switchboard.db"),
		DataDir:        envOrDefault("SWITCHBOARD_DATA_DIR", "data"),
		DefectsPath:    envOrDefault("SWITCHBOARD_DEFECTS_PATH", "defects"),
		GRPCAddr:       envOrDefault("SWITCHBOARD_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("SWITCHBOARD_HTTP_ADDR", ":8080"),
		AuthToken:      os.Getenv("SWITCHBOARD_AUTH_TOKEN"),
		NATSURL:        os.Getenv("SWITCHBOARD_NATS_URL"),
		RedisURL:       os.Getenv("SWITCHBOARD_REDIS_URL"),
		SyncS3Bucket:   os.Getenv("SWITCHBOARD_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("SWITCHBOARD_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("SWITCHBOARD_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("SWITCHBOARD_SYNC_S3_KEY", "switchboard/backup.jsonl"),
		SyncGitRepo:    os.Getenv("SWITCHBOARD_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("SWITCHBOARD_SYNC_GIT_FILE", "switchboard.jsonl"),
		SyncGitBranch:  envOrDefault("SWITCHBOARD_SYNC_GIT_BRANCH", "main"),
	}

	switch c.Backend {
	case BackendMemory, BackendFile, BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("SWITCHBOARD_DATABASE_URL is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("SWITCHBOARD_BACKEND: unknown backend %q", c.Backend)
	}

	var err error
	if c.DefectsPath, err = defects.CheckPath(c.DefectsPath); err != nil {
		return nil, fmt.Errorf("SWITCHBOARD_DEFECTS_PATH: %w", err)
	}
	if c.LockTTL, err = durationEnv("SWITCHBOARD_LOCK_TTL", "10s"); err != nil {
		return nil, err
	}
	if c.LockTTL <= 0 {
		return nil, fmt.Errorf("SWITCHBOARD_LOCK_TTL: must be positive, got %s", c.LockTTL)
	}
	if c.SyncInterval, err = durationEnv("SWITCHBOARD_SYNC_INTERVAL", "3m"); err != nil {
		return nil, err
	}

	return c, nil
}

// SyncEnabled reports whether any sync destination is configured.
func (c *Config) SyncEnabled() bool {
	return c.SyncInterval > 0 && (c.SyncS3Bucket != "" || c.SyncGitRepo != "")
}

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
