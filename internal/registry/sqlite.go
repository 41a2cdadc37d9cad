package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const draftsSchema = `
CREATE TABLE IF NOT EXISTS drafts (
	id TEXT PRIMARY KEY,
	scope_id TEXT NOT NULL,
	media_url TEXT NOT NULL,
	media_type TEXT NOT NULL,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	caption TEXT NOT NULL DEFAULT '',
	remote_video_id TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	published INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	published_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_drafts_scope_hash ON drafts(scope_id, content_hash);
CREATE INDEX IF NOT EXISTS idx_drafts_scope_published ON drafts(scope_id, published);
`

// SQLiteRegistry persists drafts in a local SQLite database. It backs
// standalone CLI use, where no remote registry service exists, and doubles as
// the registry test implementation.
type SQLiteRegistry struct {
	db   *sql.DB
	path string
}

// OpenSQLite initializes or connects to the draft database under dir.
func OpenSQLite(dir string) (*SQLiteRegistry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}
	dbPath := filepath.Join(dir, "drafts.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(draftsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply drafts schema: %w", err)
	}

	return &SQLiteRegistry{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (r *SQLiteRegistry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Path returns the database file path.
func (r *SQLiteRegistry) Path() string { return r.path }

func (r *SQLiteRegistry) CheckDuplicateHashes(ctx context.Context, scopeID string, hashes []string) (map[string]struct{}, error) {
	duplicates := make(map[string]struct{})
	if len(hashes) == 0 {
		return duplicates, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(hashes)), ",")
	query := fmt.Sprintf(
		"SELECT DISTINCT content_hash FROM drafts WHERE scope_id = ? AND content_hash IN (%s)",
		placeholders,
	)
	args := make([]any, 0, len(hashes)+1)
	args = append(args, scopeID)
	for _, hash := range hashes {
		args = append(args, hash)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("check duplicate hashes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan duplicate hash: %w", err)
		}
		duplicates[hash] = struct{}{}
	}
	return duplicates, rows.Err()
}

func (r *SQLiteRegistry) CreateDraft(ctx context.Context, draft Draft) (string, error) {
	if strings.TrimSpace(draft.ScopeID) == "" {
		return "", fmt.Errorf("create draft: scope id required")
	}
	if strings.TrimSpace(draft.MediaURL) == "" {
		return "", fmt.Errorf("create draft: media url required")
	}

	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drafts (id, scope_id, media_url, media_type, thumbnail_url, caption, remote_video_id, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, draft.ScopeID, draft.MediaURL, draft.MediaType, draft.ThumbnailURL,
		draft.Caption, draft.RemoteVideoID, draft.ContentHash,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	return id, nil
}

func (r *SQLiteRegistry) PublishDrafts(ctx context.Context, scopeID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE drafts SET published = 1, published_at = ?
		WHERE scope_id = ? AND published = 0`,
		time.Now().UTC().Format(time.RFC3339Nano), scopeID,
	)
	if err != nil {
		return 0, fmt.Errorf("publish drafts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("publish drafts: rows affected: %w", err)
	}
	return int(affected), nil
}

// DraftRecord is a stored draft row, exposed for CLI listings.
type DraftRecord struct {
	ID        string
	Draft     Draft
	Published bool
	CreatedAt time.Time
}

// ListDrafts returns the drafts recorded for a scope, oldest first.
func (r *SQLiteRegistry) ListDrafts(ctx context.Context, scopeID string) ([]DraftRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scope_id, media_url, media_type, thumbnail_url, caption, remote_video_id, content_hash, published, created_at
		FROM drafts WHERE scope_id = ? ORDER BY created_at`,
		scopeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var records []DraftRecord
	for rows.Next() {
		var rec DraftRecord
		var published int
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Draft.ScopeID, &rec.Draft.MediaURL, &rec.Draft.MediaType,
			&rec.Draft.ThumbnailURL, &rec.Draft.Caption, &rec.Draft.RemoteVideoID, &rec.Draft.ContentHash,
			&published, &createdAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		rec.Published = published != 0
		if parsed, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			rec.CreatedAt = parsed
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
