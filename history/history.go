// Package history is the global set of URLs that discovery has already seen.
// URLs are stored by content hash so the set can be shared by every node.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Hash returns the content address of url.
func Hash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Store persists URL hashes in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a history store on db, creating the table if needed.
func NewStore(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		hash TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		node_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_node_id ON history(node_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Claim records url as seen by node. It reports false, without error, when
// the URL was already in the set. The check and the insert are one
// statement, so two concurrent claims of the same URL cannot both win.
func (s *Store) Claim(ctx context.Context, nodeID uuid.UUID, url string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO history (hash, url, node_id, created_at) VALUES (?, ?, ?, ?)",
		Hash(url), url, nodeID.String(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim url: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// Seen reports whether url is in the set.
func (s *Store) Seen(ctx context.Context, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM history WHERE hash = ?", Hash(url),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query history: %w", err)
	}
	return n > 0, nil
}

// Forget removes url so it can be discovered again.
func (s *Store) Forget(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM history WHERE hash = ?", Hash(url)); err != nil {
		return fmt.Errorf("failed to forget url: %w", err)
	}
	return nil
}

// ForgetNode removes every hash claimed by node and returns how many were
// removed.
func (s *Store) ForgetNode(ctx context.Context, nodeID uuid.UUID) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM history WHERE node_id = ?", nodeID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to forget node history: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of hashes claimed by node.
func (s *Store) Count(ctx context.Context, nodeID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM history WHERE node_id = ?", nodeID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}
