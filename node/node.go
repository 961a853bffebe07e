// Package node holds the operator-defined collection rules ("nodes") and
// their SQLite store.
package node

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/collect/extract"
	"github.com/robfig/cron/v3"
)

// MaxPages bounds the listing page range of a paged node.
const MaxPages = 1_000_000

// PagePlaceholder is replaced by the page number in paged listing URLs.
const PagePlaceholder = "{page}"

// Built-in field names. Any other name is a custom field.
const (
	FieldTitle    = "title"
	FieldCategory = "category"
	FieldBody     = "body"
	FieldURL      = "url"
)

// SourceMode says how a node's listing pages are produced.
type SourceMode string

const (
	ModePaged  SourceMode = "paged"
	ModeSingle SourceMode = "single"
)

// TargetKind names the content type a node imports into.
type TargetKind string

const (
	KindArticle  TargetKind = "article"
	KindDownload TargetKind = "download"
	KindPhoto    TargetKind = "photo"
)

// Kinds lists the valid target kinds.
var Kinds = []TargetKind{KindArticle, KindDownload, KindPhoto}

// Custom errors for node operations
var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrDuplicateName = errors.New("node with this name already exists")
	ErrInvalidNode   = errors.New("invalid node")
)

// FieldRule extracts one named field from a detail page. When HTMLRule is
// set its first match is stored verbatim; otherwise Rule's first match is
// stored with markup stripped.
type FieldRule struct {
	Name     string        `json:"name" yaml:"name"`
	Rule     extract.Rule  `json:"rule" yaml:"rule"`
	HTMLRule *extract.Rule `json:"html_rule,omitempty" yaml:"html_rule,omitempty"`
}

// FieldMapping copies a source field into a target field, optionally
// through a named transform.
type FieldMapping struct {
	Target    string `json:"target" yaml:"target"`
	Source    string `json:"source" yaml:"source"`
	Transform string `json:"transform,omitempty" yaml:"transform,omitempty"`
}

// Node is a named collection configuration for one external source.
type Node struct {
	ID         uuid.UUID      `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name"`
	TargetKind TargetKind     `json:"target_kind" yaml:"target_kind"`
	SourceMode SourceMode     `json:"source_mode" yaml:"source_mode"`
	ListURL    string         `json:"list_url" yaml:"list_url"`
	PageStart  int            `json:"page_start" yaml:"page_start"`
	PageEnd    int            `json:"page_end" yaml:"page_end"`
	PageStep   int            `json:"page_step,omitempty" yaml:"page_step,omitempty"`
	URLRule    extract.Rule   `json:"url_rule" yaml:"url_rule"`
	TitleRule  extract.Rule   `json:"title_rule" yaml:"title_rule"`
	FieldRules []FieldRule    `json:"field_rules" yaml:"field_rules"`
	Mappings   []FieldMapping `json:"mappings" yaml:"mappings"`
	Charset    string         `json:"charset,omitempty" yaml:"charset,omitempty"`
	Schedule   string         `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	LastRunAt  *time.Time     `json:"last_run_at,omitempty" yaml:"last_run_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time      `json:"updated_at" yaml:"-"`
}

// PageCount returns how many listing pages the node has.
func (n *Node) PageCount() int {
	if n.SourceMode != ModePaged {
		return 1
	}
	if n.PageEnd < n.PageStart {
		return 0
	}
	// Unsigned so the span of any int range fits
	count := (uint(n.PageEnd)-uint(n.PageStart))/uint(n.step()) + 1
	if count > math.MaxInt {
		return math.MaxInt
	}
	return int(count)
}

// PageURL returns the URL of listing page cursor, counting from 1.
func (n *Node) PageURL(cursor int) (string, bool) {
	if cursor < 1 || cursor > n.PageCount() {
		return "", false
	}
	if n.SourceMode != ModePaged {
		return n.ListURL, true
	}
	page := n.PageStart + (cursor-1)*n.step()
	return strings.ReplaceAll(n.ListURL, PagePlaceholder, strconv.Itoa(page)), true
}

func (n *Node) step() int {
	if n.PageStep <= 0 {
		return 1
	}
	return n.PageStep
}

// FieldRule returns the rule for the named field.
func (n *Node) FieldRule(name string) (FieldRule, bool) {
	for _, fr := range n.FieldRules {
		if fr.Name == name {
			return fr, true
		}
	}
	return FieldRule{}, false
}

// ValidationError lists everything wrong with a node. It matches
// ErrInvalidNode with errors.Is.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid node: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidNode
}

// Validate checks the node's configuration without any network access.
func (n *Node) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(n.Name) == "" {
		addf("name is required")
	}
	if !validKind(n.TargetKind) {
		addf("target_kind must be one of %v", Kinds)
	}
	if strings.TrimSpace(n.ListURL) == "" {
		addf("list_url is required")
	}

	switch n.SourceMode {
	case ModePaged:
		if !strings.Contains(n.ListURL, PagePlaceholder) {
			addf("list_url must contain %s in paged mode", PagePlaceholder)
		}
		if n.PageStart < 0 {
			addf("page_start must not be negative")
		}
		if n.PageEnd < n.PageStart {
			addf("page_end must not be less than page_start")
		} else if n.PageStart >= 0 && n.PageCount() > MaxPages {
			addf("page range covers more than %d pages", MaxPages)
		}
		if n.PageStep < 0 {
			addf("page_step must not be negative")
		}
	case ModeSingle:
	default:
		addf("source_mode must be %q or %q", ModePaged, ModeSingle)
	}

	if n.URLRule.IsZero() {
		addf("url_rule is required")
	} else if _, err := extract.Compile(n.URLRule); err != nil {
		addf("url_rule: %v", err)
	}
	if !n.TitleRule.IsZero() {
		if _, err := extract.Compile(n.TitleRule); err != nil {
			addf("title_rule: %v", err)
		}
	}

	seen := make(map[string]bool)
	for i, fr := range n.FieldRules {
		if strings.TrimSpace(fr.Name) == "" {
			addf("field_rules[%d]: name is required", i)
			continue
		}
		if seen[fr.Name] {
			addf("field_rules[%d]: duplicate field %q", i, fr.Name)
		}
		seen[fr.Name] = true

		if fr.Rule.IsZero() && fr.HTMLRule == nil {
			addf("field %q: rule is required", fr.Name)
		}
		if !fr.Rule.IsZero() {
			if _, err := extract.Compile(fr.Rule); err != nil {
				addf("field %q: %v", fr.Name, err)
			}
		}
		if fr.HTMLRule != nil {
			if _, err := extract.Compile(*fr.HTMLRule); err != nil {
				addf("field %q html_rule: %v", fr.Name, err)
			}
		}
	}

	for i, m := range n.Mappings {
		if strings.TrimSpace(m.Target) == "" || strings.TrimSpace(m.Source) == "" {
			addf("mappings[%d]: target and source are required", i)
		}
	}

	if n.Schedule != "" {
		if _, err := cron.ParseStandard(n.Schedule); err != nil {
			addf("schedule: %v", err)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validKind(kind TargetKind) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
