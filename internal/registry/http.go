package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hoist/internal/services"
)

// HTTPDoer describes the HTTP client used by the registry RPC client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPRegistry talks to the backend draft registry over JSON RPCs.
type HTTPRegistry struct {
	baseURL  string
	apiToken string
	client   HTTPDoer
}

// NewHTTPRegistry constructs an RPC-backed registry. When client is nil a
// default client with the given timeout is used.
func NewHTTPRegistry(baseURL, apiToken string, timeout time.Duration, client HTTPDoer) *HTTPRegistry {
	if client == nil {
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPRegistry{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiToken: strings.TrimSpace(apiToken),
		client:   client,
	}
}

func (r *HTTPRegistry) CheckDuplicateHashes(ctx context.Context, scopeID string, hashes []string) (map[string]struct{}, error) {
	req := struct {
		ScopeID string   `json:"scopeId"`
		Hashes  []string `json:"hashes"`
	}{ScopeID: scopeID, Hashes: hashes}
	var resp struct {
		Duplicates []string `json:"duplicates"`
	}
	if err := r.call(ctx, "/duplicates/check", req, &resp); err != nil {
		return nil, err
	}
	duplicates := make(map[string]struct{}, len(resp.Duplicates))
	for _, hash := range resp.Duplicates {
		duplicates[hash] = struct{}{}
	}
	return duplicates, nil
}

func (r *HTTPRegistry) CreateDraft(ctx context.Context, draft Draft) (string, error) {
	req := struct {
		ScopeID       string `json:"scopeId"`
		MediaURL      string `json:"mediaUrl"`
		MediaType     string `json:"mediaType"`
		ThumbnailURL  string `json:"thumbnailUrl,omitempty"`
		Caption       string `json:"caption,omitempty"`
		RemoteVideoID string `json:"remoteVideoId,omitempty"`
		ContentHash   string `json:"contentHash,omitempty"`
	}{
		ScopeID:       draft.ScopeID,
		MediaURL:      draft.MediaURL,
		MediaType:     draft.MediaType,
		ThumbnailURL:  draft.ThumbnailURL,
		Caption:       draft.Caption,
		RemoteVideoID: draft.RemoteVideoID,
		ContentHash:   draft.ContentHash,
	}
	var resp struct {
		DraftID string `json:"draftId"`
	}
	if err := r.call(ctx, "/drafts", req, &resp); err != nil {
		return "", err
	}
	if resp.DraftID == "" {
		return "", services.Wrap(services.ErrPermanent, "registry", "create draft", "backend returned no draft id", nil)
	}
	return resp.DraftID, nil
}

func (r *HTTPRegistry) PublishDrafts(ctx context.Context, scopeID string) (int, error) {
	req := struct {
		ScopeID string `json:"scopeId"`
	}{ScopeID: scopeID}
	var resp struct {
		Published int `json:"published"`
	}
	if err := r.call(ctx, "/drafts/publish", req, &resp); err != nil {
		return 0, err
	}
	return resp.Published, nil
}

func (r *HTTPRegistry) call(ctx context.Context, route string, payload, out any) error {
	if r.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "registry", "call", "endpoint not configured", nil)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("registry request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+route, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("registry request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("registry request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return &services.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("registry request: decode response: %w", err)
	}
	return nil
}
