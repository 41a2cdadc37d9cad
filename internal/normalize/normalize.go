package normalize

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"hoist/internal/logging"
	"hoist/internal/media"
)

// ErrUnsupported is returned by a Converter that cannot decode the source
// format in this process.
var ErrUnsupported = errors.New("conversion unsupported locally")

// Converter performs local format conversion. Implementations that cannot
// handle a format return ErrUnsupported to trigger the remote fallback.
type Converter interface {
	Convert(ctx context.Context, src media.Source) (media.Source, error)
}

// Options holds normalization thresholds.
type Options struct {
	CompressAboveBytes int64
	MaxImageEdge       int
	JPEGQuality        int
	ThumbnailEdge      int
}

// ConversionResult reports the outcome of a format conversion attempt.
type ConversionResult struct {
	Source media.Source
	// NeedsRemote is set when local conversion was unavailable and the caller
	// must upload the raw bytes and invoke the remote conversion endpoint
	// afterwards.
	NeedsRemote bool
}

// CompressionResult reports the outcome of a best-effort compression.
type CompressionResult struct {
	Source         media.Source
	Compressed     bool
	OriginalSize   int64
	CompressedSize int64
}

// Normalizer converts and compresses media ahead of upload.
type Normalizer struct {
	converter Converter
	opts      Options
	logger    *slog.Logger
}

// New constructs a Normalizer. converter may be nil, in which case every
// conversion defers to the remote service.
func New(converter Converter, opts Options, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		converter: converter,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "normalize"),
	}
}

var convertExtensions = map[string]struct{}{
	".heic": {},
	".heif": {},
}

// NeedsConversion reports whether a source is in a format the storage target
// cannot serve directly.
func (n *Normalizer) NeedsConversion(src media.Source) bool {
	_, ok := convertExtensions[strings.ToLower(filepath.Ext(src.Name()))]
	return ok
}

// Convert attempts local conversion and falls back to flagging the source for
// remote conversion. The raw source is never lost: on any local failure the
// original comes back with NeedsRemote set.
func (n *Normalizer) Convert(ctx context.Context, src media.Source) (ConversionResult, error) {
	if err := ctx.Err(); err != nil {
		return ConversionResult{}, err
	}
	if n.converter == nil {
		return ConversionResult{Source: src, NeedsRemote: true}, nil
	}

	converted, err := n.converter.Convert(ctx, src)
	if err != nil {
		if !errors.Is(err, ErrUnsupported) {
			n.logger.Warn("local conversion failed, deferring to remote",
				logging.String("file", src.Name()),
				logging.Error(err),
			)
		}
		return ConversionResult{Source: src, NeedsRemote: true}, nil
	}
	return ConversionResult{Source: converted}, nil
}

// NeedsCompression reports whether an image exceeds the size threshold.
func (n *Normalizer) NeedsCompression(src media.Source) bool {
	return n.opts.CompressAboveBytes > 0 && src.Size() > n.opts.CompressAboveBytes
}
