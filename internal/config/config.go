package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir   string `toml:"log_dir"`
	StateDir string `toml:"state_dir"`
}

// Storage contains configuration for the object-storage transport.
type Storage struct {
	Endpoint    string `toml:"endpoint"`
	PhotoBucket string `toml:"photo_bucket"`
	VideoBucket string `toml:"video_bucket"`
	// MultipartThresholdMiB is the payload size at which uploads switch from a
	// single presigned PUT to a multipart transfer.
	MultipartThresholdMiB int `toml:"multipart_threshold_mib"`
	PartSizeMiB           int `toml:"part_size_mib"`
	PartConcurrency       int `toml:"part_concurrency"`
	// SingleShotCapMiB bounds the single-request fallback taken when the
	// backend reports multipart storage as unconfigured.
	SingleShotCapMiB int `toml:"single_shot_cap_mib"`
	RequestTimeout   int `toml:"request_timeout"`
}

// Queue contains configuration for the upload scheduler.
type Queue struct {
	Concurrency        int `toml:"concurrency"`
	MaxRetries         int `toml:"max_retries"`
	RetryBaseDelayMS   int `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS    int `toml:"retry_max_delay_ms"`
	StaggerMS          int `toml:"stagger_ms"`
	WatchdogIntervalMS int `toml:"watchdog_interval_ms"`
}

// Validation contains pre-enqueue file acceptance constraints.
type Validation struct {
	MaxPhotoMiB     int      `toml:"max_photo_mib"`
	MaxVideoMiB     int      `toml:"max_video_mib"`
	PhotoExtensions []string `toml:"photo_extensions"`
	VideoExtensions []string `toml:"video_extensions"`
}

// VideoIngest contains configuration for the remote video ingestion service.
type VideoIngest struct {
	Endpoint       string `toml:"endpoint"`
	ChunkSizeMiB   int    `toml:"chunk_size_mib"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Registry contains configuration for the draft registry. When Endpoint is
// empty the local SQLite registry under Paths.StateDir is used instead.
type Registry struct {
	Endpoint       string `toml:"endpoint"`
	APIToken       string `toml:"api_token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Normalize contains media normalization thresholds.
type Normalize struct {
	// CompressAboveMiB is the image size beyond which best-effort compression runs.
	CompressAboveMiB int `toml:"compress_above_mib"`
	MaxImageEdge     int `toml:"max_image_edge"`
	JPEGQuality      int `toml:"jpeg_quality"`
	ThumbnailEdge    int `toml:"thumbnail_edge"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the upload pipeline.
//
// Configuration sections by subsystem:
//   - Paths: log and local state directories
//   - Storage: presign backend endpoint, buckets, multipart tuning
//   - Queue: scheduler concurrency, retry, and watchdog settings
//   - Validation: file acceptance constraints
//   - VideoIngest: resumable video ingestion service
//   - Registry: draft registry endpoint (or local SQLite fallback)
//   - Normalize: conversion/compression thresholds
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Storage     Storage     `toml:"storage"`
	Queue       Queue       `toml:"queue"`
	Validation  Validation  `toml:"validation"`
	VideoIngest VideoIngest `toml:"video_ingest"`
	Registry    Registry    `toml:"registry"`
	Normalize   Normalize   `toml:"normalize"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hoist/config.toml")
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	c.Storage.Endpoint = strings.TrimRight(strings.TrimSpace(c.Storage.Endpoint), "/")
	c.VideoIngest.Endpoint = strings.TrimRight(strings.TrimSpace(c.VideoIngest.Endpoint), "/")
	c.Registry.Endpoint = strings.TrimRight(strings.TrimSpace(c.Registry.Endpoint), "/")

	normalizeExtensions(c.Validation.PhotoExtensions)
	normalizeExtensions(c.Validation.VideoExtensions)
	return nil
}

func normalizeExtensions(exts []string) {
	for i, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[i] = ext
	}
}

// ExpandPath resolves ~ and relative segments to an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// CreateSample writes the embedded sample configuration to target.
func CreateSample(target string) error {
	return os.WriteFile(target, []byte(sampleConfig), 0o644)
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
