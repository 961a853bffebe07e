package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML document used to version node rule sets outside the
// database.
type File struct {
	Nodes []Node `yaml:"nodes"`
}

// ReadFile parses a node file from r.
func ReadFile(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read node file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse node file: %w", err)
	}
	return &f, nil
}

// LoadFile reads a node file from path.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open node file: %w", err)
	}
	defer fh.Close()
	return ReadFile(fh)
}

// WriteFile writes nodes as YAML to w.
func WriteFile(w io.Writer, nodes []Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Nodes: nodes}); err != nil {
		return fmt.Errorf("failed to encode node file: %w", err)
	}
	return enc.Close()
}

// ImportResult counts what Import did.
type ImportResult struct {
	Created int
	Updated int
}

// Import stores every node in f. Nodes are matched by name: an existing node
// is replaced in place (keeping its ID and last run), anything else is
// created. Every node is validated before anything is written.
func (s *Store) Import(ctx context.Context, f *File) (ImportResult, error) {
	var result ImportResult

	for i := range f.Nodes {
		if err := f.Nodes[i].Validate(); err != nil {
			return result, fmt.Errorf("node %q: %w", f.Nodes[i].Name, err)
		}
	}

	existing, err := s.List(ctx, Filter{})
	if err != nil {
		return result, err
	}
	byName := make(map[string]Node, len(existing))
	for _, n := range existing {
		byName[n.Name] = n
	}

	for i := range f.Nodes {
		n := f.Nodes[i]
		if cur, ok := byName[n.Name]; ok {
			n.ID = cur.ID
			if err := s.Update(ctx, &n); err != nil {
				return result, fmt.Errorf("failed to update node %q: %w", n.Name, err)
			}
			result.Updated++
			continue
		}

		if _, err := s.Create(ctx, &n); err != nil {
			if errors.Is(err, ErrDuplicateName) {
				return result, fmt.Errorf("node %q appears twice: %w", n.Name, err)
			}
			return result, fmt.Errorf("failed to create node %q: %w", n.Name, err)
		}
		result.Created++
	}

	return result, nil
}
