// Package content is a file-backed target content store. Each imported
// record is one JSON file under a directory per target kind.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Custom errors for content operations
var (
	ErrEntryNotFound = errors.New("content entry not found")
	ErrInvalidKind   = errors.New("invalid content kind")
)

var kindPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

func checkKind(kind string) error {
	if !kindPattern.MatchString(kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return nil
}

// entryNamespace derives stable entry IDs from (kind, source URL).
var entryNamespace = uuid.MustParse("6f1c9a52-3d0e-4b8e-9a57-2c4f0e7d1b93")

// EntryID returns the ID an entry for url in kind is stored under.
func EntryID(kind, url string) uuid.UUID {
	return uuid.NewSHA1(entryNamespace, []byte(kind+"\x00"+url))
}

// Entry is one stored content record.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	Kind      string         `json:"kind"`
	SourceURL string         `json:"source_url"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ReadError describes a failure to read a single entry file.
type ReadError struct {
	Filename string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

// ListResult contains the entries of a kind plus any per-file errors.
type ListResult struct {
	Entries []Entry
	Errors  []ReadError
}

// Store manages entries in a directory.
type Store struct {
	mu         sync.Mutex
	storageDir string
}

// NewStore creates a content store rooted at storageDir.
func NewStore(storageDir string) (*Store, error) {
	// 0700: owner-only access
	if err := os.MkdirAll(storageDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Store{
		storageDir: storageDir,
	}, nil
}

func (s *Store) path(kind string, id uuid.UUID) string {
	return filepath.Join(s.storageDir, kind, id.String()+".json")
}

// Upsert stores fields as the entry for (kind, sourceURL), creating it or
// replacing the fields of the existing one. It reports whether the entry
// was created.
func (s *Store) Upsert(kind, sourceURL string, fields map[string]any) (*Entry, bool, error) {
	if err := checkKind(kind); err != nil {
		return nil, false, err
	}
	if sourceURL == "" {
		return nil, false, fmt.Errorf("source url is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(s.storageDir, kind), 0o700); err != nil {
		return nil, false, fmt.Errorf("failed to create kind directory: %w", err)
	}

	id := EntryID(kind, sourceURL)
	now := time.Now().UTC()

	existing, err := s.read(s.path(kind, id))
	created := false
	switch {
	case errors.Is(err, ErrEntryNotFound):
		existing = &Entry{ID: id, Kind: kind, SourceURL: sourceURL, CreatedAt: now}
		created = true
	case err != nil:
		return nil, false, err
	}

	existing.Fields = fields
	existing.UpdatedAt = now

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal content entry: %w", err)
	}

	// 0600: owner-only read/write
	if err := os.WriteFile(s.path(kind, id), data, 0o600); err != nil {
		return nil, false, fmt.Errorf("failed to write content entry: %w", err)
	}

	return existing, created, nil
}

// Get retrieves an entry by kind and ID.
func (s *Store) Get(kind string, id uuid.UUID) (*Entry, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(s.path(kind, id))
}

// GetByURL retrieves the entry imported from sourceURL.
func (s *Store) GetByURL(kind, sourceURL string) (*Entry, error) {
	return s.Get(kind, EntryID(kind, sourceURL))
}

func (s *Store) read(filename string) (*Entry, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to read content entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content entry: %w", err)
	}
	return &entry, nil
}

// List returns every entry of kind ordered by source URL. Corrupted files
// are collected in the result's Errors rather than failing the call; a
// missing kind directory yields an empty result.
func (s *Store) List(kind string) (*ListResult, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.storageDir, kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &ListResult{}, nil
		}
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	result := &ListResult{}
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}

		entry, err := s.read(filepath.Join(dir, de.Name()))
		if err != nil {
			result.Errors = append(result.Errors, ReadError{
				Filename: de.Name(),
				Err:      err,
			})
			continue
		}
		result.Entries = append(result.Entries, *entry)
	}

	sort.Slice(result.Entries, func(i, j int) bool {
		return result.Entries[i].SourceURL < result.Entries[j].SourceURL
	})
	return result, nil
}

// Delete removes an entry.
func (s *Store) Delete(kind string, id uuid.UUID) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(kind, id)); err != nil {
		if os.IsNotExist(err) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("failed to delete content entry: %w", err)
	}
	return nil
}
