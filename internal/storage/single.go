package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"hoist/internal/logging"
	"hoist/internal/media"
	"hoist/internal/services"
)

type presignRequest struct {
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
}

type presignResponse struct {
	URL       string `json:"url"`
	PublicURL string `json:"publicUrl"`
	Provider  string `json:"provider"`
}

// uploadSingle performs a single presigned PUT of the whole payload. The
// payload is buffered fully up front so the source handle cannot be
// invalidated mid-transfer during large concurrent batches.
func (c *Client) uploadSingle(ctx context.Context, bucket, path, contentType string, src media.Source, onProgress ProgressFunc) (Result, error) {
	data, err := media.ReadAll(src)
	if err != nil {
		return Result{}, services.Wrap(services.ErrPermanent, "storage", "buffer payload", src.Name(), err)
	}

	var presigned presignResponse
	err = c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return c.postJSON(ctx, "/presign", presignRequest{Bucket: bucket, Path: path, ContentType: contentType}, &presigned)
	})
	if err != nil {
		return Result{}, services.Wrap(classifyMarker(err), "storage", "presign", path, err)
	}

	err = c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			c.logger.Debug("retrying single-shot upload",
				logging.String("path", path), logging.Int("attempt", attempt))
		}
		_, putErr := c.putBytes(ctx, presigned.URL, contentType, data, onProgress)
		return putErr
	})
	if err != nil {
		return Result{}, services.Wrap(classifyMarker(err), "storage", "upload", path, err)
	}

	onProgress(100)
	return Result{PublicURL: presigned.PublicURL, Path: path, Provider: presigned.Provider}, nil
}

// putBytes PUTs a payload to a presigned URL and returns the response ETag.
// Progress is reported from acknowledged writes and capped at 99; callers
// decide when a transfer counts as complete.
func (c *Client) putBytes(ctx context.Context, url, contentType string, data []byte, onProgress ProgressFunc) (string, error) {
	body := &progressReader{
		reader: bytes.NewReader(data),
		total:  int64(len(data)),
		report: onProgress,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", fmt.Errorf("build put request: %w", err)
	}
	req.ContentLength = int64(len(data))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.transfer.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &services.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(payload)}
	}
	return resp.Header.Get("ETag"), nil
}

// progressReader reports cumulative read percentage, reserving 100 for the
// caller's completion signal.
type progressReader struct {
	reader io.Reader
	total  int64
	done   int64
	report ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n > 0 && p.total > 0 {
		p.done += int64(n)
		percent := int(p.done * 100 / p.total)
		if percent > 99 {
			percent = 99
		}
		p.report(percent)
	}
	return n, err
}
