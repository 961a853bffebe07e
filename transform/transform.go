// Package transform holds the named string functions that field mappings
// may apply to extracted values.
package transform

import (
	"html"
	"sort"
	"strings"
	"sync"
	"unicode"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/pevans/collect/extract"
)

// Func transforms one field value.
type Func func(string) string

// Identity returns its input unchanged. It is what unknown names resolve to.
func Identity(s string) string { return s }

// Registry maps transform names to functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns a registry holding the built-in transforms.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	for name, fn := range builtins() {
		r.funcs[name] = fn
	}
	return r
}

// Register adds or replaces a transform.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the named transform and whether it exists.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Resolve returns the named transform, or Identity when name is empty or
// unknown.
func (r *Registry) Resolve(name string) Func {
	if fn, ok := r.Lookup(name); ok {
		return fn
	}
	return Identity
}

// Names lists the registered transforms in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	mdOnce      sync.Once
	mdConverter *htmltomarkdown.Converter
)

func builtins() map[string]Func {
	return map[string]Func{
		"identity":       Identity,
		"trim":           strings.TrimSpace,
		"lower":          strings.ToLower,
		"upper":          strings.ToUpper,
		"collapse_space": CollapseSpace,
		"unescape":       html.UnescapeString,
		"strip_tags":     extract.StripMarkup,
		"markdown":       Markdown,
		"digits":         Digits,
	}
}

// CollapseSpace trims s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Markdown converts an HTML fragment to CommonMark. Input that cannot be
// converted is returned as plain text.
func Markdown(s string) string {
	mdOnce.Do(func() {
		mdConverter = htmltomarkdown.NewConverter(
			htmltomarkdown.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	})

	out, err := mdConverter.ConvertString(s)
	if err != nil {
		return extract.StripMarkup(s)
	}
	return strings.TrimSpace(out)
}

// Digits keeps only the decimal digits of s.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, s)
}
