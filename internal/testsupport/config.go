package testsupport

import (
	"path/filepath"
	"testing"

	"hoist/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Queue.StaggerMS = 0
	cfg.Queue.RetryBaseDelayMS = 1
	cfg.Queue.RetryMaxDelayMS = 5
	cfg.Queue.WatchdogIntervalMS = 20

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithConcurrency sets the queue concurrency limit.
func WithConcurrency(n int) ConfigOption {
	return func(cfg *config.Config) { cfg.Queue.Concurrency = n }
}

// WithMaxRetries sets the per-job retry ceiling.
func WithMaxRetries(n int) ConfigOption {
	return func(cfg *config.Config) { cfg.Queue.MaxRetries = n }
}
