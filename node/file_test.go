package node

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nodeFileYAML = `
nodes:
  - name: example
    target_kind: article
    source_mode: paged
    list_url: "http://x/list?p={page}"
    page_start: 1
    page_end: 3
    url_rule:
      type: regex
      pattern: '<a class="item" href="([^"]+)"'
    title_rule:
      type: css
      pattern: a.item
    field_rules:
      - name: body
        rule:
          type: css
          pattern: div.body
        html_rule:
          type: css
          pattern: div.body
          attr: html
    mappings:
      - target: title
        source: title
        transform: trim
`

// TestReadFile verifies YAML parsing of a node file
func TestReadFile(t *testing.T) {
	f, err := ReadFile(strings.NewReader(nodeFileYAML))
	require.NoError(t, err)
	require.Len(t, f.Nodes, 1)

	n := f.Nodes[0]
	assert.Equal(t, "example", n.Name)
	assert.Equal(t, ModePaged, n.SourceMode)
	assert.Equal(t, 3, n.PageEnd)
	require.Len(t, n.FieldRules, 1)
	require.NotNil(t, n.FieldRules[0].HTMLRule)
	assert.Equal(t, "html", n.FieldRules[0].HTMLRule.Attr)
	assert.NoError(t, n.Validate())
}

// TestReadFile_Invalid verifies malformed YAML fails
func TestReadFile_Invalid(t *testing.T) {
	_, err := ReadFile(strings.NewReader("nodes: [unterminated"))
	assert.Error(t, err)
}

// TestLoadFile_Missing verifies a missing path fails
func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestImport_CreatesThenUpdates verifies nodes are matched by name
func TestImport_CreatesThenUpdates(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "nodes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(nodeFileYAML), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)

	result, err := store.Import(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Created: 1}, result)

	first, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	f.Nodes[0].PageEnd = 9
	result, err = store.Import(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Updated: 1}, result)

	second, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID, "ID should be kept")
	assert.Equal(t, 9, second[0].PageEnd)
}

// TestImport_InvalidWritesNothing verifies validation happens up front
func TestImport_InvalidWritesNothing(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	bad := sampleNode("bad")
	bad.ListURL = ""
	f := &File{Nodes: []Node{*sampleNode("good"), *bad}}

	_, err := store.Import(ctx, f)
	assert.ErrorIs(t, err, ErrInvalidNode)

	nodes, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

// TestWriteFile_RoundTrip verifies exported nodes can be read back
func TestWriteFile_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFile(&buf, []Node{*sampleNode("one")}))

	f, err := ReadFile(&buf)
	require.NoError(t, err)
	require.Len(t, f.Nodes, 1)
	assert.Equal(t, "one", f.Nodes[0].Name)
	assert.Equal(t, sampleNode("one").URLRule, f.Nodes[0].URLRule)
}
