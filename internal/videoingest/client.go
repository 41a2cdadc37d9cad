package videoingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hoist/internal/logging"
	"hoist/internal/media"
	"hoist/internal/retry"
	"hoist/internal/services"
)

// Result identifies the ingested video on the remote service.
type Result struct {
	VideoID      string
	PlaybackURL  string
	ThumbnailURL string
}

// Config holds ingestion client settings.
type Config struct {
	Endpoint       string
	ChunkSize      int64
	ControlTimeout time.Duration
}

// Client uploads videos chunk by chunk with resumption support.
type Client struct {
	cfg    Config
	policy retry.Policy
	logger *slog.Logger

	control  *http.Client
	transfer *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClients overrides the control and transfer clients (tests).
func WithHTTPClients(control, transfer *http.Client) Option {
	return func(c *Client) {
		if control != nil {
			c.control = control
		}
		if transfer != nil {
			c.transfer = transfer
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) { c.policy = policy }
}

// NewClient constructs an ingestion client.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	timeout := cfg.ControlTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8 * 1024 * 1024
	}
	client := &Client{
		cfg:      cfg,
		policy:   retry.Default(),
		logger:   logging.NewComponentLogger(logger, "videoingest"),
		control:  &http.Client{Timeout: timeout},
		transfer: &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Enabled reports whether an ingestion endpoint is configured.
func (c *Client) Enabled() bool {
	return strings.TrimSpace(c.cfg.Endpoint) != ""
}

type createRequest struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

type createResponse struct {
	UploadID string `json:"uploadId"`
}

type finalizeResponse struct {
	VideoID      string `json:"videoId"`
	PlaybackURL  string `json:"playbackUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Upload streams src to the ingestion service. Progress stays below 100
// until the final chunk is acknowledged.
func (c *Client) Upload(ctx context.Context, src media.Source, onProgress func(percent int)) (Result, error) {
	if !c.Enabled() {
		return Result{}, services.Wrap(services.ErrConfiguration, "videoingest", "upload", "endpoint not configured", nil)
	}
	if onProgress == nil {
		onProgress = func(int) {}
	}

	var created createResponse
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return c.postJSON(ctx, "/uploads", createRequest{
			Name:        src.Name(),
			Size:        src.Size(),
			ContentType: src.ContentType(),
		}, &created)
	})
	if err != nil {
		return Result{}, services.Wrap(classifyMarker(err), "videoingest", "create upload", src.Name(), err)
	}
	if created.UploadID == "" {
		return Result{}, services.Wrap(services.ErrPermanent, "videoingest", "create upload", "service returned no upload id", nil)
	}

	reader, err := src.Open()
	if err != nil {
		return Result{}, services.Wrap(services.ErrPermanent, "videoingest", "open source", src.Name(), err)
	}
	defer reader.Close()

	total := src.Size()
	var offset int64
	var final finalizeResponse
	chunk := make([]byte, c.cfg.ChunkSize)
	for offset < total {
		n, readErr := io.ReadFull(reader, chunk[:min64(c.cfg.ChunkSize, total-offset)])
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return Result{}, services.Wrap(services.ErrPermanent, "videoingest", "read source", src.Name(), readErr)
		}
		data := chunk[:n]
		isFinal := offset+int64(n) >= total

		sendErr := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
			sendOffset := offset
			send := data
			if attempt > 1 {
				// After an ambiguous failure the server may or may not have
				// committed the chunk. Resync before resending.
				committed, offErr := c.committedOffset(ctx, created.UploadID)
				if offErr != nil {
					return offErr
				}
				if committed >= offset+int64(n) {
					if !isFinal {
						return nil
					}
					// Final chunk landed but the acknowledgement was lost.
					// An empty chunk at the committed offset re-requests it.
					send = nil
					sendOffset = committed
				} else if committed > offset {
					send = data[committed-offset:]
					sendOffset = committed
				}
			}
			body, chunkErr := c.putChunk(ctx, created.UploadID, sendOffset, send)
			if chunkErr != nil {
				return chunkErr
			}
			if isFinal {
				if err := json.Unmarshal(body, &final); err != nil {
					return fmt.Errorf("decode finalize response: %w", err)
				}
			}
			return nil
		})
		if sendErr != nil {
			return Result{}, services.Wrap(classifyMarker(sendErr), "videoingest", "upload chunk",
				fmt.Sprintf("offset %d", offset), sendErr)
		}

		offset += int64(n)
		percent := int(offset * 100 / total)
		if offset < total && percent > 99 {
			percent = 99
		}
		onProgress(percent)
	}
	if final.VideoID == "" {
		return Result{}, services.Wrap(services.ErrPermanent, "videoingest", "finalize", "service returned no video id", nil)
	}

	return Result{
		VideoID:      final.VideoID,
		PlaybackURL:  final.PlaybackURL,
		ThumbnailURL: final.ThumbnailURL,
	}, nil
}

func (c *Client) putChunk(ctx context.Context, uploadID string, offset int64, data []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/uploads/%s", c.cfg.Endpoint, uploadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build chunk request: %w", err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "application/offset+octet-stream")
	req.Header.Set("Upload-Offset", strconv.FormatInt(offset, 10))

	resp, err := c.transfer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read chunk response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &services.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) committedOffset(ctx context.Context, uploadID string) (int64, error) {
	url := fmt.Sprintf("%s/uploads/%s", c.cfg.Endpoint, uploadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build offset request: %w", err)
	}
	resp, err := c.control.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return 0, &services.HTTPStatusError{StatusCode: resp.StatusCode}
	}
	offset, err := strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse committed offset: %w", err)
	}
	return offset, nil
}

func (c *Client) postJSON(ctx context.Context, route string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+route, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.control.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return &services.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classifyMarker(err error) error {
	if services.IsRetryable(err) {
		return services.ErrTransient
	}
	return services.ErrPermanent
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
