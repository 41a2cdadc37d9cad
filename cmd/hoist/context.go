package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"hoist/internal/config"
	"hoist/internal/logging"
	"hoist/internal/normalize"
	"hoist/internal/queue"
	"hoist/internal/registry"
	"hoist/internal/storage"
	"hoist/internal/videoingest"
)

type commandContext struct {
	configFlag *string
	scopeFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, scopeFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		scopeFlag:  scopeFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) scope() string {
	if c.scopeFlag == nil || strings.TrimSpace(*c.scopeFlag) == "" {
		return "default"
	}
	return strings.TrimSpace(*c.scopeFlag)
}

// logger writes structured logs to a file under the configured log directory
// so command output stays readable.
func (c *commandContext) logger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	return logging.NewFileLogger(cfg.Paths.LogDir, "hoist.log", logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
}

// openRegistry returns the configured registry and a release function. The
// local SQLite registry is guarded by a file lock so two hoist processes
// cannot write the same database.
func (c *commandContext) openRegistry(cfg *config.Config) (registry.Registry, func() error, error) {
	if cfg.Registry.Endpoint != "" {
		reg := registry.NewHTTPRegistry(
			cfg.Registry.Endpoint,
			cfg.Registry.APIToken,
			time.Duration(cfg.Registry.RequestTimeout)*time.Second,
			nil,
		)
		return reg, func() error { return nil }, nil
	}

	lock := flock.New(filepath.Join(cfg.Paths.StateDir, "registry.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, nil, fmt.Errorf("acquire registry lock: %w", err)
	}
	if !locked {
		return nil, nil, fmt.Errorf("another hoist process holds the registry lock at %s", lock.Path())
	}

	local, err := registry.OpenSQLite(cfg.Paths.StateDir)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	release := func() error {
		closeErr := local.Close()
		if unlockErr := lock.Unlock(); closeErr == nil {
			closeErr = unlockErr
		}
		return closeErr
	}
	return local, release, nil
}

// buildQueue wires the full pipeline for one upload session.
func (c *commandContext) buildQueue(cfg *config.Config, reg registry.Registry, logger *slog.Logger) *queue.Queue {
	const mib = int64(1) << 20
	transport := storage.NewClient(storage.Config{
		Endpoint:           cfg.Storage.Endpoint,
		MultipartThreshold: int64(cfg.Storage.MultipartThresholdMiB) * mib,
		PartSize:           int64(cfg.Storage.PartSizeMiB) * mib,
		PartConcurrency:    cfg.Storage.PartConcurrency,
		SingleShotCap:      int64(cfg.Storage.SingleShotCapMiB) * mib,
		ControlTimeout:     time.Duration(cfg.Storage.RequestTimeout) * time.Second,
	}, logger)

	var video queue.VideoIngestor
	if cfg.VideoIngest.Endpoint != "" {
		video = videoingest.NewClient(videoingest.Config{
			Endpoint:       cfg.VideoIngest.Endpoint,
			ChunkSize:      int64(cfg.VideoIngest.ChunkSizeMiB) * mib,
			ControlTimeout: time.Duration(cfg.VideoIngest.RequestTimeout) * time.Second,
		}, logger)
	}

	normalizer := normalize.New(nil, normalize.Options{
		CompressAboveBytes: int64(cfg.Normalize.CompressAboveMiB) * mib,
		MaxImageEdge:       cfg.Normalize.MaxImageEdge,
		JPEGQuality:        cfg.Normalize.JPEGQuality,
		ThumbnailEdge:      cfg.Normalize.ThumbnailEdge,
	}, logger)

	return queue.New(cfg, c.scope(), queue.Deps{
		Transport:  transport,
		Video:      video,
		Registry:   reg,
		Normalizer: normalizer,
	}, logger)
}
