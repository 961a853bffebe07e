package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestResolve_Unknown verifies unknown names fall back to Identity
func TestResolve_Unknown(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("rot13")
	assert.False(t, ok)
	assert.Equal(t, "  Raw <b>value</b> ", r.Resolve("rot13")("  Raw <b>value</b> "))
	assert.Equal(t, "x", r.Resolve("")("x"))
}

// TestBuiltins verifies each built-in transform
func TestBuiltins(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"identity", " a ", " a "},
		{"trim", "  a b \n", "a b"},
		{"lower", "ABC", "abc"},
		{"upper", "abc", "ABC"},
		{"collapse_space", " a \n\t b  ", "a b"},
		{"unescape", "Tom &amp; Jerry", "Tom & Jerry"},
		{"strip_tags", "<p>Hello <b>world</b></p>", "Hello world"},
		{"digits", "Page ١ 12-34", "1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.name)(tt.input))
		})
	}
}

// TestMarkdown verifies HTML is converted to markdown
func TestMarkdown(t *testing.T) {
	out := NewRegistry().Resolve("markdown")("<h1>Title</h1><p>Some <strong>bold</strong> text</p>")
	assert.True(t, strings.HasPrefix(out, "# Title"), out)
	assert.Contains(t, out, "**bold**")
}

// TestRegister verifies custom transforms override lookups
func TestRegister(t *testing.T) {
	r := NewRegistry()
	r.Register("trim", func(s string) string { return "custom" })
	r.Register("reverse", func(s string) string {
		b := []rune(s)
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
		return string(b)
	})

	assert.Equal(t, "custom", r.Resolve("trim")("x"))
	assert.Equal(t, "cba", r.Resolve("reverse")("abc"))
	assert.Contains(t, r.Names(), "reverse")
	assert.Contains(t, r.Names(), "markdown")
}
