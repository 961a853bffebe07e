package node

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store manages node configurations in SQLite.
type Store struct {
	db *sql.DB
}

// Filter represents filtering options for listing nodes.
type Filter struct {
	Kind      *TargetKind // Filter by target_kind
	Scheduled bool        // Only nodes with a schedule
	Limit     int
	Offset    int
}

// NewStore creates a node store on db, creating the table if needed.
func NewStore(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates the nodes table if it doesn't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		target_kind TEXT NOT NULL,
		source_mode TEXT NOT NULL,
		list_url TEXT NOT NULL,
		page_start INTEGER NOT NULL DEFAULT 0,
		page_end INTEGER NOT NULL DEFAULT 0,
		page_step INTEGER NOT NULL DEFAULT 1,
		url_rule TEXT NOT NULL,
		title_rule TEXT NOT NULL,
		field_rules TEXT NOT NULL,
		mappings TEXT NOT NULL,
		charset TEXT,
		schedule TEXT,
		last_run_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Create validates n, assigns it an ID and timestamps, and persists it. On a
// validation error nothing is written.
func (s *Store) Create(ctx context.Context, n *Node) (*Node, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	created := *n
	created.ID = uuid.New()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.LastRunAt = nil
	if created.PageStep <= 0 {
		created.PageStep = 1
	}

	cols, err := encodeRules(&created)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO nodes (
			id, name, target_kind, source_mode, list_url,
			page_start, page_end, page_step,
			url_rule, title_rule, field_rules, mappings,
			charset, schedule, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		created.ID.String(),
		created.Name,
		string(created.TargetKind),
		string(created.SourceMode),
		created.ListURL,
		created.PageStart,
		created.PageEnd,
		created.PageStep,
		cols.urlRule, cols.titleRule, cols.fieldRules, cols.mappings,
		nullString(created.Charset),
		nullString(created.Schedule),
		formatTime(&created.CreatedAt),
		formatTime(&created.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to insert node: %w", err)
	}

	return &created, nil
}

const selectColumns = `
	SELECT id, name, target_kind, source_mode, list_url,
	       page_start, page_end, page_step,
	       url_rule, title_rule, field_rules, mappings,
	       charset, schedule, last_run_at, created_at, updated_at
	FROM nodes
`

// Get retrieves a node by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Node, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id.String())
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query node: %w", err)
	}
	return n, nil
}

// List lists nodes ordered by name.
func (s *Store) List(ctx context.Context, filter Filter) ([]Node, error) {
	query := selectColumns

	var whereClauses []string
	var args []any

	if filter.Kind != nil {
		whereClauses = append(whereClauses, "target_kind = ?")
		args = append(args, string(*filter.Kind))
	}
	if filter.Scheduled {
		whereClauses = append(whereClauses, "schedule IS NOT NULL AND schedule != ''")
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY name ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, *n)
	}

	return nodes, rows.Err()
}

// Update replaces the configuration of an existing node. ID, CreatedAt and
// LastRunAt are not changed.
func (s *Store) Update(ctx context.Context, n *Node) error {
	if err := n.Validate(); err != nil {
		return err
	}

	step := n.PageStep
	if step <= 0 {
		step = 1
	}

	cols, err := encodeRules(n)
	if err != nil {
		return err
	}

	now := time.Now()
	query := `
		UPDATE nodes SET
			name = ?, target_kind = ?, source_mode = ?, list_url = ?,
			page_start = ?, page_end = ?, page_step = ?,
			url_rule = ?, title_rule = ?, field_rules = ?, mappings = ?,
			charset = ?, schedule = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		n.Name, string(n.TargetKind), string(n.SourceMode), n.ListURL,
		n.PageStart, n.PageEnd, step,
		cols.urlRule, cols.titleRule, cols.fieldRules, cols.mappings,
		nullString(n.Charset), nullString(n.Schedule), formatTime(&now),
		n.ID.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to update node: %w", err)
	}

	if err := checkAffected(result); err != nil {
		return err
	}
	n.PageStep = step
	n.UpdatedAt = now.Truncate(0)
	return nil
}

// MarkRun records the end of a full discovery pass.
func (s *Store) MarkRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE nodes SET last_run_at = ? WHERE id = ?",
		formatTime(&at), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark node run: %w", err)
	}
	return checkAffected(result)
}

// Delete deletes a node. Staged items and history are owned by their own
// stores; callers cascade to them first.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return checkAffected(result)
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNodeNotFound
	}
	return nil
}

type ruleColumns struct {
	urlRule, titleRule, fieldRules, mappings string
}

func encodeRules(n *Node) (ruleColumns, error) {
	var cols ruleColumns
	fieldRules := n.FieldRules
	if fieldRules == nil {
		fieldRules = []FieldRule{}
	}
	mappings := n.Mappings
	if mappings == nil {
		mappings = []FieldMapping{}
	}

	for _, c := range []struct {
		dst *string
		v   any
		col string
	}{
		{&cols.urlRule, n.URLRule, "url_rule"},
		{&cols.titleRule, n.TitleRule, "title_rule"},
		{&cols.fieldRules, fieldRules, "field_rules"},
		{&cols.mappings, mappings, "mappings"},
	} {
		data, err := json.Marshal(c.v)
		if err != nil {
			return cols, fmt.Errorf("failed to marshal %s: %w", c.col, err)
		}
		*c.dst = string(data)
	}
	return cols, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanNode parses a row selected with selectColumns.
func scanNode(row rowScanner) (*Node, error) {
	var idStr, name, kind, mode, listURL string
	var pageStart, pageEnd, pageStep int
	var urlRule, titleRule, fieldRules, mappings string
	var charset, schedule, lastRunAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&idStr, &name, &kind, &mode, &listURL,
		&pageStart, &pageEnd, &pageStep,
		&urlRule, &titleRule, &fieldRules, &mappings,
		&charset, &schedule, &lastRunAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse node ID: %w", err)
	}

	n := &Node{
		ID:         id,
		Name:       name,
		TargetKind: TargetKind(kind),
		SourceMode: SourceMode(mode),
		ListURL:    listURL,
		PageStart:  pageStart,
		PageEnd:    pageEnd,
		PageStep:   pageStep,
		Charset:    charset.String,
		Schedule:   schedule.String,
		CreatedAt:  parseTime(createdAt),
		UpdatedAt:  parseTime(updatedAt),
	}

	if lastRunAt.Valid {
		t := parseTime(lastRunAt.String)
		n.LastRunAt = &t
	}

	for _, c := range []struct {
		src string
		dst any
		col string
	}{
		{urlRule, &n.URLRule, "url_rule"},
		{titleRule, &n.TitleRule, "title_rule"},
		{fieldRules, &n.FieldRules, "field_rules"},
		{mappings, &n.Mappings, "mappings"},
	} {
		if err := json.Unmarshal([]byte(c.src), c.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", c.col, err)
		}
	}

	return n, nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "unique constraint")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
