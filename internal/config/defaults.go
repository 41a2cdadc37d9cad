package config

const (
	defaultLogDir   = "~/.local/share/hoist/logs"
	defaultStateDir = "~/.local/share/hoist/state"

	defaultPhotoBucket           = "media-photos"
	defaultVideoBucket           = "media-videos"
	defaultMultipartThresholdMiB = 10
	defaultPartSizeMiB           = 10
	defaultPartConcurrency       = 3
	defaultSingleShotCapMiB      = 64
	defaultStorageTimeout        = 30

	defaultQueueConcurrency     = 3
	defaultMaxRetries           = 3
	defaultRetryBaseDelayMS     = 1000
	defaultRetryMaxDelayMS      = 30000
	defaultStaggerMS            = 150
	defaultWatchdogIntervalMS   = 5000
	defaultMaxPhotoMiB          = 50
	defaultMaxVideoMiB          = 2048
	defaultVideoIngestChunkMiB  = 8
	defaultVideoIngestTimeout   = 30
	defaultRegistryTimeout      = 15
	defaultCompressAboveMiB     = 2
	defaultMaxImageEdge         = 4096
	defaultJPEGQuality          = 82
	defaultThumbnailEdge        = 512
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

var (
	defaultPhotoExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif"}
	defaultVideoExtensions = []string{".mp4", ".mov", ".webm", ".m4v"}
)

// MinPartSizeMiB is the storage provider's minimum multipart part size.
const MinPartSizeMiB = 5

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Storage: Storage{
			PhotoBucket:           defaultPhotoBucket,
			VideoBucket:           defaultVideoBucket,
			MultipartThresholdMiB: defaultMultipartThresholdMiB,
			PartSizeMiB:           defaultPartSizeMiB,
			PartConcurrency:       defaultPartConcurrency,
			SingleShotCapMiB:      defaultSingleShotCapMiB,
			RequestTimeout:        defaultStorageTimeout,
		},
		Queue: Queue{
			Concurrency:        defaultQueueConcurrency,
			MaxRetries:         defaultMaxRetries,
			RetryBaseDelayMS:   defaultRetryBaseDelayMS,
			RetryMaxDelayMS:    defaultRetryMaxDelayMS,
			StaggerMS:          defaultStaggerMS,
			WatchdogIntervalMS: defaultWatchdogIntervalMS,
		},
		Validation: Validation{
			MaxPhotoMiB:     defaultMaxPhotoMiB,
			MaxVideoMiB:     defaultMaxVideoMiB,
			PhotoExtensions: append([]string(nil), defaultPhotoExtensions...),
			VideoExtensions: append([]string(nil), defaultVideoExtensions...),
		},
		VideoIngest: VideoIngest{
			ChunkSizeMiB:   defaultVideoIngestChunkMiB,
			RequestTimeout: defaultVideoIngestTimeout,
		},
		Registry: Registry{
			RequestTimeout: defaultRegistryTimeout,
		},
		Normalize: Normalize{
			CompressAboveMiB: defaultCompressAboveMiB,
			MaxImageEdge:     defaultMaxImageEdge,
			JPEGQuality:      defaultJPEGQuality,
			ThumbnailEdge:    defaultThumbnailEdge,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
