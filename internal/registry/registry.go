package registry

import (
	"context"
)

// Draft is an uploaded asset recorded for a scope but not yet visible to end
// users. A separate publish action promotes every draft in a scope at once,
// so partially uploaded batches never surface.
type Draft struct {
	ScopeID       string
	MediaURL      string
	MediaType     string
	ThumbnailURL  string
	Caption       string
	RemoteVideoID string
	ContentHash   string
}

// Registry is the draft registry boundary. The production implementation is
// an RPC client; a SQLite-backed implementation serves standalone use.
type Registry interface {
	// CheckDuplicateHashes returns the subset of hashes already recorded for
	// the scope.
	CheckDuplicateHashes(ctx context.Context, scopeID string, hashes []string) (map[string]struct{}, error)
	// CreateDraft records an uploaded asset and returns its draft id.
	CreateDraft(ctx context.Context, draft Draft) (string, error)
	// PublishDrafts promotes every draft in the scope to published, returning
	// the number promoted.
	PublishDrafts(ctx context.Context, scopeID string) (int, error)
}
