package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/pevans/collect/node"
	"github.com/pevans/collect/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver is an in-memory category.Resolver
type stubResolver struct {
	ids map[string]int64
	err error
}

func (r stubResolver) Resolve(_ context.Context, kind, name string) (int64, bool, error) {
	if r.err != nil {
		return 0, false, r.err
	}
	id, ok := r.ids[kind+"/"+name]
	return id, ok, nil
}

func testNode(mappings ...node.FieldMapping) *node.Node {
	return &node.Node{Name: "n", TargetKind: node.KindArticle, Mappings: mappings}
}

// TestMap_AppliesTransforms verifies named transforms and identity fallback
func TestMap_AppliesTransforms(t *testing.T) {
	m := New(nil, nil)
	n := testNode(
		node.FieldMapping{Target: "headline", Source: "title", Transform: "trim"},
		node.FieldMapping{Target: "content", Source: "body", Transform: "strip_tags"},
		node.FieldMapping{Target: "raw", Source: "body", Transform: "no_such_transform"},
		node.FieldMapping{Target: "author", Source: "author"},
	)

	rec, err := m.Map(context.Background(), n, "http://x/a", map[string]string{
		"title": "  Hello  ",
		"body":  "<p>Text</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, node.KindArticle, rec.Kind)
	assert.Equal(t, "http://x/a", rec.SourceURL)
	assert.Equal(t, "Hello", rec.Fields["headline"])
	assert.Equal(t, "Text", rec.Fields["content"])
	assert.Equal(t, "<p>Text</p>", rec.Fields["raw"])
	assert.NotContains(t, rec.Fields, "author", "missing source leaves the target out")
}

// TestMap_CategoryNumeric verifies numeric categories pass through
func TestMap_CategoryNumeric(t *testing.T) {
	m := New(nil, stubResolver{})
	n := testNode(node.FieldMapping{Target: "catid", Source: "category"})

	rec, err := m.Map(context.Background(), n, "u", map[string]string{"category": " 42 "})
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.Fields["catid"])
	assert.Empty(t, rec.Unresolved)
}

// TestMap_CategoryResolved verifies names go through the lookup table
func TestMap_CategoryResolved(t *testing.T) {
	m := New(nil, stubResolver{ids: map[string]int64{"article/News": 5}})
	n := testNode(node.FieldMapping{Target: "catid", Source: "category", Transform: "trim"})

	rec, err := m.Map(context.Background(), n, "u", map[string]string{"category": " News "})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Fields["catid"])
}

// TestMap_CategoryUnresolved verifies an unknown name leaves the field absent
func TestMap_CategoryUnresolved(t *testing.T) {
	m := New(nil, stubResolver{ids: map[string]int64{}})
	n := testNode(
		node.FieldMapping{Target: "title", Source: "title"},
		node.FieldMapping{Target: "catid", Source: "category"},
	)

	rec, err := m.Map(context.Background(), n, "u", map[string]string{
		"title":    "T",
		"category": "Action",
	})
	require.NoError(t, err)
	assert.NotContains(t, rec.Fields, "catid")
	assert.Equal(t, []string{"Action"}, rec.Unresolved)
	assert.Equal(t, "T", rec.Fields["title"])
}

// TestMap_CategoryResolverError verifies lookup failures are returned
func TestMap_CategoryResolverError(t *testing.T) {
	m := New(nil, stubResolver{err: errors.New("db closed")})
	n := testNode(node.FieldMapping{Target: "catid", Source: "category"})

	_, err := m.Map(context.Background(), n, "u", map[string]string{"category": "Action"})
	assert.Error(t, err)
}

// TestMap_NoMappings verifies fields are copied when no table is configured
func TestMap_NoMappings(t *testing.T) {
	m := New(transform.NewRegistry(), nil)

	rec, err := m.Map(context.Background(), testNode(), "u", map[string]string{
		"title": "T",
		"body":  "B",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "T", "body": "B"}, rec.Fields)
}
