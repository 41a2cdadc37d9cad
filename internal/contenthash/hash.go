package contenthash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"hoist/internal/media"
)

// Hash computes the hex-encoded SHA-256 digest of a source's bytes. The
// digest depends only on content, never on name, size, or timestamps.
func Hash(ctx context.Context, src media.Source) (string, error) {
	reader, err := src.Open()
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", src.Name(), err)
	}
	defer reader.Close()

	hasher := sha256.New()
	buf := make([]byte, 256*1024)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := reader.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("hash %s: %w", src.Name(), readErr)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
