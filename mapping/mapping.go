// Package mapping turns an extracted field map into a record in the target
// content schema.
package mapping

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pevans/collect/category"
	"github.com/pevans/collect/node"
	"github.com/pevans/collect/transform"
)

// Record is a mapped item ready for import.
type Record struct {
	Kind      node.TargetKind `json:"kind"`
	SourceURL string          `json:"source_url"`
	// Fields holds strings, except category targets which hold an int64.
	Fields map[string]any `json:"fields"`
	// Unresolved lists category names the lookup table did not know.
	Unresolved []string `json:"unresolved,omitempty"`
}

// Mapper applies a node's mapping table.
type Mapper struct {
	transforms *transform.Registry
	categories category.Resolver
}

// New creates a mapper. A nil registry uses the built-ins; a nil resolver
// leaves every non-numeric category unresolved.
func New(transforms *transform.Registry, categories category.Resolver) *Mapper {
	if transforms == nil {
		transforms = transform.NewRegistry()
	}
	return &Mapper{
		transforms: transforms,
		categories: categories,
	}
}

// Map converts payload using n's mappings. A mapping whose source field is
// missing from payload leaves its target out. Without any mappings every
// payload field is copied under its own name.
func (m *Mapper) Map(ctx context.Context, n *node.Node, sourceURL string, payload map[string]string) (Record, error) {
	rec := Record{
		Kind:      n.TargetKind,
		SourceURL: sourceURL,
		Fields:    make(map[string]any),
	}

	mappings := n.Mappings
	if len(mappings) == 0 {
		mappings = identityMappings(payload)
	}

	for _, fm := range mappings {
		raw, ok := payload[fm.Source]
		if !ok {
			continue
		}
		value := m.transforms.Resolve(fm.Transform)(raw)

		if fm.Source != node.FieldCategory {
			rec.Fields[fm.Target] = value
			continue
		}

		id, found, err := m.resolveCategory(ctx, string(n.TargetKind), value)
		if err != nil {
			return rec, err
		}
		if !found {
			if name := strings.TrimSpace(value); name != "" {
				rec.Unresolved = append(rec.Unresolved, name)
			}
			continue
		}
		rec.Fields[fm.Target] = id
	}

	return rec, nil
}

// resolveCategory returns numeric values as-is and looks names up.
func (m *Mapper) resolveCategory(ctx context.Context, kind, value string) (int64, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false, nil
	}
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		return id, true, nil
	}
	if m.categories == nil {
		return 0, false, nil
	}

	id, found, err := m.categories.Resolve(ctx, kind, value)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve category %q: %w", value, err)
	}
	return id, found, nil
}

func identityMappings(payload map[string]string) []node.FieldMapping {
	names := make([]string, 0, len(payload))
	for name := range payload {
		names = append(names, name)
	}
	sort.Strings(names)

	mappings := make([]node.FieldMapping, len(names))
	for i, name := range names {
		mappings[i] = node.FieldMapping{Target: name, Source: name}
	}
	return mappings
}
