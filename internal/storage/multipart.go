package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hoist/internal/logging"
	"hoist/internal/media"
	"hoist/internal/services"
)

type multipartCreateRequest struct {
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type multipartCreateResponse struct {
	UploadID  string `json:"uploadId"`
	Key       string `json:"key"`
	PublicURL string `json:"publicUrl"`
}

type presignPartsRequest struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	UploadID    string `json:"uploadId"`
	PartNumbers []int  `json:"partNumbers"`
}

type partURL struct {
	PartNumber int    `json:"partNumber"`
	URL        string `json:"url"`
}

type presignPartsResponse struct {
	URLs []partURL `json:"urls"`
}

type completedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

type completeRequest struct {
	Bucket   string          `json:"bucket"`
	Path     string          `json:"path"`
	UploadID string          `json:"uploadId"`
	Parts    []completedPart `json:"parts,omitempty"`
	Abort    bool            `json:"abort,omitempty"`
}

type completeResponse struct {
	PublicURL string `json:"publicUrl"`
}

func (c *Client) uploadMultipart(ctx context.Context, bucket, path, contentType string, src media.Source, onProgress ProgressFunc) (Result, error) {
	var created multipartCreateResponse
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return c.postJSON(ctx, "/multipart/create", multipartCreateRequest{
			Bucket:      bucket,
			Path:        path,
			ContentType: contentType,
			Size:        src.Size(),
		}, &created)
	})
	if err != nil {
		if isStorageNotConfigured(err) {
			// Backend has no multipart support. Honor the single-request
			// fallback only below a hard ceiling rather than buffering an
			// arbitrarily large payload into one request.
			if src.Size() <= c.cfg.SingleShotCap {
				c.logger.Warn("multipart unavailable, falling back to single request",
					logging.String("path", path), logging.Int64("size", src.Size()))
				return c.uploadSingle(ctx, bucket, path, contentType, src, onProgress)
			}
			return Result{}, services.Wrap(services.ErrConfiguration, "storage", "multipart create",
				fmt.Sprintf("multipart unavailable and %d bytes exceeds single-request cap", src.Size()), err)
		}
		return Result{}, services.Wrap(classifyMarker(err), "storage", "multipart create", path, err)
	}

	parts := PlanParts(src.Size(), c.cfg.PartSize)
	urls, err := c.presignParts(ctx, bucket, created, parts)
	if err != nil {
		c.abort(bucket, path, created.UploadID)
		return Result{}, err
	}

	etags := make([]string, len(parts))
	var doneBytes atomic.Int64
	var progressMu sync.Mutex
	lastPercent := -1
	// Serialized so concurrent part completions never report out of order;
	// progress is monotonic and capped at 99 until completion confirms.
	reportPart := func(size int64) {
		done := doneBytes.Add(size)
		percent := int(done * 100 / src.Size())
		if percent > 99 {
			percent = 99
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		if percent > lastPercent {
			lastPercent = percent
			onProgress(percent)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.partConcurrency())
	for i, part := range parts {
		group.Go(func() error {
			etag, err := c.uploadPart(groupCtx, src, part, urls[part.Number])
			if err != nil {
				return err
			}
			etags[i] = etag
			reportPart(part.Size)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		// Sibling parts were cancelled through the group context; release the
		// remote handle and propagate the original failure.
		c.abort(bucket, path, created.UploadID)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return Result{}, services.Wrap(services.ErrCancelled, "storage", "multipart upload", path, ctx.Err())
		}
		return Result{}, err
	}

	completed := make([]completedPart, len(parts))
	for i, part := range parts {
		completed[i] = completedPart{PartNumber: part.Number, ETag: etags[i]}
	}
	var finished completeResponse
	err = c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return c.postJSON(ctx, "/multipart/complete", completeRequest{
			Bucket:   bucket,
			Path:     path,
			UploadID: created.UploadID,
			Parts:    completed,
		}, &finished)
	})
	if err != nil {
		c.abort(bucket, path, created.UploadID)
		return Result{}, services.Wrap(classifyMarker(err), "storage", "multipart complete", path, err)
	}

	onProgress(100)
	publicURL := finished.PublicURL
	if publicURL == "" {
		publicURL = created.PublicURL
	}
	return Result{PublicURL: publicURL, Path: path, Provider: "multipart"}, nil
}

func (c *Client) presignParts(ctx context.Context, bucket string, created multipartCreateResponse, parts []Part) (map[int]string, error) {
	numbers := make([]int, len(parts))
	for i, part := range parts {
		numbers[i] = part.Number
	}
	var presigned presignPartsResponse
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return c.postJSON(ctx, "/multipart/presign", presignPartsRequest{
			Bucket:      bucket,
			Key:         created.Key,
			UploadID:    created.UploadID,
			PartNumbers: numbers,
		}, &presigned)
	})
	if err != nil {
		return nil, services.Wrap(classifyMarker(err), "storage", "presign parts", created.Key, err)
	}

	urls := make(map[int]string, len(presigned.URLs))
	for _, entry := range presigned.URLs {
		urls[entry.PartNumber] = entry.URL
	}
	for _, part := range parts {
		if urls[part.Number] == "" {
			return nil, services.Wrap(services.ErrPermanent, "storage", "presign parts",
				fmt.Sprintf("missing url for part %d", part.Number), nil)
		}
	}
	return urls, nil
}

// uploadPart PUTs one byte range, retrying transient failures independently of
// its siblings. The part bytes are re-read per attempt so a retried request
// never replays a consumed stream.
func (c *Client) uploadPart(ctx context.Context, src media.Source, part Part, url string) (string, error) {
	var etag string
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		data, err := readRange(src, part.Offset, part.Size)
		if err != nil {
			return services.Wrap(services.ErrPermanent, "storage", "read part",
				fmt.Sprintf("part %d", part.Number), err)
		}
		tag, err := c.putBytes(ctx, url, "", data, func(int) {})
		if err != nil {
			return err
		}
		if tag == "" {
			// The provider's CORS policy must expose the ETag header; without
			// it the object can never be assembled.
			return services.Wrap(services.ErrConfiguration, "storage", "upload part",
				fmt.Sprintf("part %d response missing ETag header", part.Number), nil)
		}
		etag = strings.Trim(tag, `"`)
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrConfiguration) || errors.Is(err, services.ErrPermanent) {
			return "", err
		}
		return "", services.Wrap(classifyMarker(err), "storage", "upload part",
			fmt.Sprintf("part %d", part.Number), err)
	}
	return etag, nil
}

// abort releases a multipart handle after failure. It runs on a background
// context because the caller's context is typically already cancelled, and
// its own failure is logged rather than propagated: the original upload error
// is what the caller needs to see.
func (c *Client) abort(bucket, path, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := c.postJSON(ctx, "/multipart/complete", completeRequest{
		Bucket:   bucket,
		Path:     path,
		UploadID: uploadID,
		Abort:    true,
	}, nil)
	if err != nil {
		c.logger.Warn("multipart abort failed, orphaned parts may remain",
			logging.String("path", path),
			logging.String("upload_id", uploadID),
			logging.Error(err),
		)
	}
}

func (c *Client) partConcurrency() int {
	if c.cfg.PartConcurrency > 0 {
		return c.cfg.PartConcurrency
	}
	return 3
}

func isStorageNotConfigured(err error) bool {
	var statusErr *services.HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	if statusErr.StatusCode == http.StatusNotImplemented {
		return true
	}
	return strings.Contains(strings.ToLower(statusErr.Body), "storage not configured")
}
