// Package extract applies node rules to fetched pages. A Rule is pure data
// stored on a node; Compile turns it into an Extractor bound to one rule
// type.
package extract

import (
	"errors"
	"fmt"
	"strings"
)

// RuleType selects the extractor implementation.
type RuleType string

const (
	RuleRegex RuleType = "regex"
	RuleCSS   RuleType = "css"
	RuleXPath RuleType = "xpath"
	RuleFeed  RuleType = "feed"
)

// AttrHTML asks css and xpath rules for the matched element's inner HTML
// instead of its text.
const AttrHTML = "html"

// ErrEmptyRule is returned when compiling a rule without a pattern.
var ErrEmptyRule = errors.New("rule has no pattern")

// Rule is one extraction pattern.
//
// For regex rules each match yields capture group 1, or the whole match when
// the pattern has no groups; "." also matches newlines. For css and xpath
// rules each matched element yields its text, the attribute named by Attr, or
// its inner HTML when Attr is "html". Feed rules read RSS/Atom documents and
// Pattern names the item field (link, title, description, guid).
type Rule struct {
	Type    RuleType `json:"type" yaml:"type"`
	Pattern string   `json:"pattern" yaml:"pattern"`
	Attr    string   `json:"attr,omitempty" yaml:"attr,omitempty"`
}

// IsZero reports whether the rule is unset.
func (r Rule) IsZero() bool {
	return strings.TrimSpace(r.Pattern) == ""
}

func (r Rule) String() string {
	if r.Attr != "" {
		return fmt.Sprintf("%s:%s@%s", r.Type, r.Pattern, r.Attr)
	}
	return fmt.Sprintf("%s:%s", r.Type, r.Pattern)
}

// Extractor returns every value a rule matches on a page, in document order.
type Extractor interface {
	All(page *Page) ([]string, error)
}

// Compile validates r and returns its extractor. An empty Type is treated as
// regex.
func Compile(r Rule) (Extractor, error) {
	if r.IsZero() {
		return nil, ErrEmptyRule
	}

	switch r.Type {
	case RuleRegex, "":
		return newRegexExtractor(r.Pattern)
	case RuleCSS:
		return newCSSExtractor(r.Pattern, r.Attr)
	case RuleXPath:
		return newXPathExtractor(r.Pattern, r.Attr)
	case RuleFeed:
		return newFeedExtractor(r.Pattern)
	default:
		return nil, fmt.Errorf("unknown rule type: %q", r.Type)
	}
}

// First returns the first non-empty value ex finds on page, or "" when there
// is none.
func First(ex Extractor, page *Page) (string, error) {
	values, err := ex.All(page)
	if err != nil {
		return "", err
	}
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	return "", nil
}
