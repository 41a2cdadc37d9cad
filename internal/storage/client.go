package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hoist/internal/logging"
	"hoist/internal/media"
	"hoist/internal/retry"
	"hoist/internal/services"
)

// Config holds transport tuning.
type Config struct {
	Endpoint           string
	MultipartThreshold int64
	PartSize           int64
	PartConcurrency    int
	// SingleShotCap bounds the single-request fallback taken when the backend
	// reports multipart storage as unconfigured.
	SingleShotCap  int64
	ControlTimeout time.Duration
}

// Result describes a completed upload.
type Result struct {
	PublicURL string
	Path      string
	Provider  string
}

// ProgressFunc receives integer upload percentages. Values stay below 100
// until the remote completion step confirms.
type ProgressFunc func(percent int)

// Client uploads sources through the presign backend.
type Client struct {
	cfg    Config
	policy retry.Policy
	logger *slog.Logger

	// control issues presign/create/complete calls with a bounded timeout;
	// transfer carries raw bytes with no artificial deadline.
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

// NewClient constructs a transport client.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	timeout := cfg.ControlTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		cfg:      cfg,
		policy:   retry.Default(),
		logger:   logging.NewComponentLogger(logger, "storage"),
		control:  &http.Client{Timeout: timeout},
		transfer: &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Upload transfers src to bucket/path, choosing the strategy by size.
func (c *Client) Upload(ctx context.Context, bucket, path, contentType string, src media.Source, onProgress ProgressFunc) (Result, error) {
	if strings.TrimSpace(c.cfg.Endpoint) == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "storage", "upload", "endpoint not configured", nil)
	}
	if onProgress == nil {
		onProgress = func(int) {}
	}

	if src.Size() >= c.threshold() {
		return c.uploadMultipart(ctx, bucket, path, contentType, src, onProgress)
	}
	return c.uploadSingle(ctx, bucket, path, contentType, src, onProgress)
}

// ConvertInPlace asks the backend to convert a stored object to a servable
// format, replacing it at the same path. Used for formats whose conversion
// was deferred past upload.
func (c *Client) ConvertInPlace(ctx context.Context, bucket, path string) error {
	req := map[string]string{"bucket": bucket, "path": path}
	var resp struct {
		PublicURL string `json:"publicUrl"`
	}
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return c.postJSON(ctx, "/convert", req, &resp)
	})
	if err != nil {
		return services.Wrap(classifyMarker(err), "storage", "convert in place", path, err)
	}
	return nil
}

func (c *Client) threshold() int64 {
	if c.cfg.MultipartThreshold > 0 {
		return c.cfg.MultipartThreshold
	}
	return 10 * 1024 * 1024
}

// postJSON issues a control-plane request and decodes the JSON response.
// Non-2xx statuses surface as *services.HTTPStatusError.
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

// classifyMarker maps a raw transport error to the taxonomy marker for Wrap.
func classifyMarker(err error) error {
	if services.IsRetryable(err) {
		return services.ErrTransient
	}
	return services.ErrPermanent
}

// readRange extracts one part's bytes from a source. Each call opens a fresh
// reader so retries never see a consumed stream.
func readRange(src media.Source, offset, size int64) ([]byte, error) {
	reader, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if seeker, ok := reader.(io.Seeker); ok {
		if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek to %d: %w", offset, err)
		}
	} else if offset > 0 {
		if _, err := io.CopyN(io.Discard, reader, offset); err != nil {
			return nil, fmt.Errorf("skip to %d: %w", offset, err)
		}
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("read %d bytes at %d: %w", size, offset, err)
	}
	return data, nil
}
