// Package staging holds discovered URLs while they move through extraction
// and import.
package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a staged item's pipeline stage. It only moves forward:
// discovered, extracted, imported.
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusExtracted  Status = "extracted"
	StatusImported   Status = "imported"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{StatusDiscovered, StatusExtracted, StatusImported}

// Custom errors for staging operations
var (
	ErrItemNotFound      = errors.New("staged item not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Item is one discovered URL.
type Item struct {
	ID        int64             `json:"id"`
	NodeID    uuid.UUID         `json:"node_id"`
	URL       string            `json:"url"`
	Title     string            `json:"title"`
	Payload   map[string]string `json:"payload,omitempty"`
	Status    Status            `json:"status"`
	Message   string            `json:"message,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Filter represents filtering options for listing items.
type Filter struct {
	NodeID *uuid.UUID
	Status *Status
	Limit  int
	Offset int
}

// Store persists staged items in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a staging store on db, creating the table if needed.
func NewStore(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS staged_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		payload TEXT,
		status TEXT NOT NULL,
		message TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_staged_items_node_status ON staged_items(node_id, status, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Add stages a newly discovered URL.
func (s *Store) Add(ctx context.Context, nodeID uuid.UUID, url, title string) (*Item, error) {
	now := time.Now().Truncate(0)
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO staged_items (node_id, url, title, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nodeID.String(), url, title, string(StatusDiscovered), formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert staged item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get staged item id: %w", err)
	}

	return &Item{
		ID:        id,
		NodeID:    nodeID,
		URL:       url,
		Title:     title,
		Status:    StatusDiscovered,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const selectColumns = `
	SELECT id, node_id, url, title, payload, status, message, created_at, updated_at
	FROM staged_items
`

// Get retrieves an item by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query staged item: %w", err)
	}
	return item, nil
}

// NextDiscovered returns up to limit items of node awaiting extraction,
// lowest ID first.
func (s *Store) NextDiscovered(ctx context.Context, nodeID uuid.UUID, limit int) ([]Item, error) {
	return s.query(ctx, selectColumns+`
		WHERE node_id = ? AND status = ?
		ORDER BY id ASC LIMIT ?
	`, nodeID.String(), string(StatusDiscovered), limit)
}

// ExtractedAfter returns up to limit extracted items of node with an ID
// greater than after, lowest ID first. Paging by ID keeps every page
// stable while earlier items change status.
func (s *Store) ExtractedAfter(ctx context.Context, nodeID uuid.UUID, after int64, limit int) ([]Item, error) {
	return s.query(ctx, selectColumns+`
		WHERE node_id = ? AND status = ? AND id > ?
		ORDER BY id ASC LIMIT ?
	`, nodeID.String(), string(StatusExtracted), after, limit)
}

// GetMany returns the node's items with the given IDs, lowest ID first.
// Unknown IDs are skipped.
func (s *Store) GetMany(ctx context.Context, nodeID uuid.UUID, ids []int64) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := []any{nodeID.String()}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	return s.query(ctx, selectColumns+`
		WHERE node_id = ? AND id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY id ASC
	`, args...)
}

// List lists items, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Item, error) {
	query := selectColumns

	var whereClauses []string
	var args []any

	if filter.NodeID != nil {
		whereClauses = append(whereClauses, "node_id = ?")
		args = append(args, filter.NodeID.String())
	}
	if filter.Status != nil {
		whereClauses = append(whereClauses, "status = ?")
		args = append(args, string(*filter.Status))
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY id DESC"

	// SQLite only accepts OFFSET after LIMIT; -1 means no limit
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	if limit > 0 || filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	return s.query(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staged item: %w", err)
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

// Stats counts the node's items per status. Every status is present.
func (s *Store) Stats(ctx context.Context, nodeID uuid.UUID) (map[Status]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM staged_items WHERE node_id = ? GROUP BY status",
		nodeID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count staged items: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int64, len(Statuses))
	for _, st := range Statuses {
		stats[st] = 0
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		stats[Status(status)] = n
	}

	return stats, rows.Err()
}

// Count returns how many of the node's items are in status.
func (s *Store) Count(ctx context.Context, nodeID uuid.UUID, status Status) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM staged_items WHERE node_id = ? AND status = ?",
		nodeID.String(), string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count staged items: %w", err)
	}
	return n, nil
}

// MarkExtracted stores the extracted payload and moves the item from
// discovered to extracted.
func (s *Store) MarkExtracted(ctx context.Context, id int64, payload map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return s.transition(ctx, id, StatusDiscovered, StatusExtracted,
		"payload = ?, message = NULL", string(data))
}

// MarkImported moves the item from extracted to imported and records the
// gateway's message.
func (s *Store) MarkImported(ctx context.Context, id int64, message string) error {
	return s.transition(ctx, id, StatusExtracted, StatusImported,
		"message = ?", nullString(message))
}

// transition applies a status change only if the item is still in from.
func (s *Store) transition(ctx context.Context, id int64, from, to Status, set string, args ...any) error {
	query := "UPDATE staged_items SET status = ?, updated_at = ?, " + set +
		" WHERE id = ? AND status = ?"

	params := []any{string(to), formatTime(time.Now())}
	params = append(params, args...)
	params = append(params, id, string(from))

	result, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("failed to update staged item: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: item %d is %s, not %s", ErrInvalidTransition, id, item.Status, from)
}

// SetMessage records an operator-visible message without changing status.
func (s *Store) SetMessage(ctx context.Context, id int64, message string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE staged_items SET message = ?, updated_at = ? WHERE id = ?",
		nullString(message), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update staged item: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Delete removes an item and returns it.
func (s *Store) Delete(ctx context.Context, id int64) (*Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM staged_items WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to delete staged item: %w", err)
	}
	return item, nil
}

// DeleteNode removes every item of node and returns how many were removed.
func (s *Store) DeleteNode(ctx context.Context, nodeID uuid.UUID) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM staged_items WHERE node_id = ?", nodeID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete staged items: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var nodeID, status, createdAt, updatedAt string
	var payload, message sql.NullString

	err := row.Scan(&item.ID, &nodeID, &item.URL, &item.Title, &payload,
		&status, &message, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	item.NodeID, err = uuid.Parse(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse node ID: %w", err)
	}
	item.Status = Status(status)
	item.Message = message.String
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)

	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &item.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	return &item, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
