package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateVideoIngest(); err != nil {
		return err
	}
	if err := c.validateNormalize(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.PhotoBucket == "" {
		return errors.New("storage.photo_bucket must be set")
	}
	if c.Storage.VideoBucket == "" {
		return errors.New("storage.video_bucket must be set")
	}
	if c.Storage.MultipartThresholdMiB <= 0 {
		return errors.New("storage.multipart_threshold_mib must be positive")
	}
	if c.Storage.PartSizeMiB < MinPartSizeMiB {
		return fmt.Errorf("storage.part_size_mib must be at least %d", MinPartSizeMiB)
	}
	if c.Storage.PartConcurrency <= 0 {
		return errors.New("storage.part_concurrency must be positive")
	}
	if c.Storage.SingleShotCapMiB <= 0 {
		return errors.New("storage.single_shot_cap_mib must be positive")
	}
	if c.Storage.RequestTimeout <= 0 {
		return errors.New("storage.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Concurrency <= 0 {
		return errors.New("queue.concurrency must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return errors.New("queue.max_retries must not be negative")
	}
	if c.Queue.RetryBaseDelayMS <= 0 {
		return errors.New("queue.retry_base_delay_ms must be positive")
	}
	if c.Queue.RetryMaxDelayMS < c.Queue.RetryBaseDelayMS {
		return errors.New("queue.retry_max_delay_ms must not be below retry_base_delay_ms")
	}
	if c.Queue.WatchdogIntervalMS <= 0 {
		return errors.New("queue.watchdog_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateValidation() error {
	if c.Validation.MaxPhotoMiB <= 0 {
		return errors.New("validation.max_photo_mib must be positive")
	}
	if c.Validation.MaxVideoMiB <= 0 {
		return errors.New("validation.max_video_mib must be positive")
	}
	if len(c.Validation.PhotoExtensions) == 0 && len(c.Validation.VideoExtensions) == 0 {
		return errors.New("validation must allow at least one extension")
	}
	for _, ext := range append(append([]string(nil), c.Validation.PhotoExtensions...), c.Validation.VideoExtensions...) {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("validation extension %q must start with a dot", ext)
		}
	}
	return nil
}

func (c *Config) validateVideoIngest() error {
	if c.VideoIngest.ChunkSizeMiB <= 0 {
		return errors.New("video_ingest.chunk_size_mib must be positive")
	}
	if c.VideoIngest.RequestTimeout <= 0 {
		return errors.New("video_ingest.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateNormalize() error {
	if c.Normalize.CompressAboveMiB <= 0 {
		return errors.New("normalize.compress_above_mib must be positive")
	}
	if c.Normalize.MaxImageEdge <= 0 {
		return errors.New("normalize.max_image_edge must be positive")
	}
	if c.Normalize.JPEGQuality < 1 || c.Normalize.JPEGQuality > 100 {
		return errors.New("normalize.jpeg_quality must be between 1 and 100")
	}
	if c.Normalize.ThumbnailEdge <= 0 {
		return errors.New("normalize.thumbnail_edge must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
