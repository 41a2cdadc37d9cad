package normalize

import (
	"bytes"
	"context"
	"strings"

	"github.com/disintegration/imaging"

	"hoist/internal/logging"
	"hoist/internal/media"
)

// Compress re-encodes an image under the configured pixel and quality budget.
// Compression is best effort: any decode or encode failure, or a result that
// is not actually smaller, returns the original source unchanged.
func (n *Normalizer) Compress(ctx context.Context, src media.Source) CompressionResult {
	unchanged := CompressionResult{
		Source:         src,
		OriginalSize:   src.Size(),
		CompressedSize: src.Size(),
	}
	if err := ctx.Err(); err != nil {
		return unchanged
	}

	reader, err := src.Open()
	if err != nil {
		n.logger.Warn("compression skipped, source unreadable",
			logging.String("file", src.Name()), logging.Error(err))
		return unchanged
	}
	defer reader.Close()

	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		n.logger.Warn("compression skipped, undecodable image",
			logging.String("file", src.Name()), logging.Error(err))
		return unchanged
	}

	bounds := img.Bounds()
	if edge := n.opts.MaxImageEdge; edge > 0 && (bounds.Dx() > edge || bounds.Dy() > edge) {
		img = imaging.Fit(img, edge, edge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(n.opts.JPEGQuality)); err != nil {
		n.logger.Warn("compression skipped, encode failed",
			logging.String("file", src.Name()), logging.Error(err))
		return unchanged
	}
	if int64(buf.Len()) >= src.Size() {
		return unchanged
	}

	return CompressionResult{
		Source:         media.NewByteSource(jpegName(src.Name()), "image/jpeg", buf.Bytes()),
		Compressed:     true,
		OriginalSize:   src.Size(),
		CompressedSize: int64(buf.Len()),
	}
}

// Thumbnail renders a bounded-size JPEG preview of an image source.
func (n *Normalizer) Thumbnail(ctx context.Context, src media.Source) (media.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reader, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	edge := n.opts.ThumbnailEdge
	if edge <= 0 {
		edge = 512
	}
	thumb := imaging.Fit(img, edge, edge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(75)); err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(jpegName(src.Name()), ".jpg") + "_thumb.jpg"
	return media.NewByteSource(name, "image/jpeg", buf.Bytes()), nil
}

func jpegName(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name + ".jpg"
}
