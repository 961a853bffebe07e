// Package category resolves category names found on scraped pages to the
// numeric category IDs of the target content store.
package category

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Category is one lookup table entry.
type Category struct {
	Kind string `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
	ID   int64  `json:"id" yaml:"id"`
}

// Resolver maps a (target kind, name) pair to a category ID.
type Resolver interface {
	Resolve(ctx context.Context, kind, name string) (int64, bool, error)
}

// Store is the SQLite-backed lookup table with an in-memory cache in front.
// Misses are cached too; Set and Delete invalidate the affected key.
type Store struct {
	db    *sql.DB
	cache *cache.Cache
}

// NewStore creates a category store on db. ttl bounds how long a lookup is
// cached; zero selects five minutes.
func NewStore(db *sql.DB, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	store := &Store{
		db:    db,
		cache: cache.New(ttl, 2*ttl),
	}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS categories (
		kind TEXT NOT NULL,
		name_key TEXT NOT NULL,
		name TEXT NOT NULL,
		id INTEGER NOT NULL,
		PRIMARY KEY (kind, name_key)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

type lookup struct {
	id    int64
	found bool
}

// nameKey folds a category name for matching. The database and the cache
// both match on this key so they agree for non-ASCII names.
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func cacheKey(kind, key string) string {
	return kind + "\x00" + key
}

// Resolve looks up name for kind. Names are matched case-insensitively
// after trimming.
func (s *Store) Resolve(ctx context.Context, kind, name string) (int64, bool, error) {
	nk := nameKey(name)
	key := cacheKey(kind, nk)

	if v, ok := s.cache.Get(key); ok {
		l := v.(lookup)
		return l.id, l.found, nil
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM categories WHERE kind = ? AND name_key = ?", kind, nk,
	).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		s.cache.SetDefault(key, lookup{})
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to query category: %w", err)
	}

	s.cache.SetDefault(key, lookup{id: id, found: true})
	return id, true, nil
}

// Set adds or replaces an entry.
func (s *Store) Set(ctx context.Context, c Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Kind == "" || c.Name == "" {
		return fmt.Errorf("category kind and name are required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (kind, name_key, name, id) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, name_key) DO UPDATE SET name = excluded.name, id = excluded.id
	`, c.Kind, nameKey(c.Name), c.Name, c.ID)
	if err != nil {
		return fmt.Errorf("failed to set category: %w", err)
	}

	s.cache.Delete(cacheKey(c.Kind, nameKey(c.Name)))
	return nil
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (s *Store) Delete(ctx context.Context, kind, name string) error {
	nk := nameKey(name)
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM categories WHERE kind = ? AND name_key = ?", kind, nk,
	); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	s.cache.Delete(cacheKey(kind, nk))
	return nil
}

// List returns the entries for kind, or every entry when kind is empty.
func (s *Store) List(ctx context.Context, kind string) ([]Category, error) {
	query := "SELECT kind, name, id FROM categories"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY kind, name_key"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Kind, &c.Name, &c.ID); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// Seed stores every entry in cats.
func (s *Store) Seed(ctx context.Context, cats []Category) error {
	for _, c := range cats {
		if err := s.Set(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
