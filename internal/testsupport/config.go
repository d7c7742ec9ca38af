package testsupport

import (
	"path/filepath"
	"testing"

	"fileforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.StorageDir = filepath.Join(base, "storage")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.TempDir = filepath.Join(base, "tmp")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Storage.SigningSecret = "test-secret"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithJobTTL overrides job retention for expiry tests.
func WithJobTTL(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Jobs.TTLSeconds = seconds
	}
}

// WithAttemptCap overrides the delivery attempt cap.
func WithAttemptCap(cap int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.AttemptCap = cap
	}
}

// WithLeaseTTL overrides the lease duration for reclaim tests.
func WithLeaseTTL(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.LeaseTTLSeconds = seconds
	}
}

// WithBackoffBase overrides the retry backoff base for queue tests.
func WithBackoffBase(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.BackoffBaseSeconds = seconds
	}
}
