package node

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/pevans/collect/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: a valid paged node
func sampleNode(name string) *Node {
	return &Node{
		Name:       name,
		TargetKind: KindArticle,
		SourceMode: ModePaged,
		ListURL:    "http://x/list?p={page}",
		PageStart:  1,
		PageEnd:    2,
		URLRule:    extract.Rule{Type: extract.RuleCSS, Pattern: "a.item", Attr: "href"},
		TitleRule:  extract.Rule{Type: extract.RuleCSS, Pattern: "a.item"},
		FieldRules: []FieldRule{
			{Name: FieldBody, Rule: extract.Rule{Type: extract.RuleCSS, Pattern: "div.body"}},
		},
		Mappings: []FieldMapping{
			{Target: "title", Source: FieldTitle, Transform: "trim"},
		},
	}
}

// Test helper: every listing page URL of a node
func pageURLs(n *Node) []string {
	var urls []string
	for cursor := 1; cursor <= n.PageCount(); cursor++ {
		u, ok := n.PageURL(cursor)
		if !ok {
			break
		}
		urls = append(urls, u)
	}
	return urls
}

// TestPageURL_Paged verifies placeholder substitution over the range
func TestPageURL_Paged(t *testing.T) {
	n := sampleNode("paged")
	n.PageStart = 2
	n.PageEnd = 7
	n.PageStep = 2

	assert.Equal(t, 3, n.PageCount())
	assert.Equal(t, []string{
		"http://x/list?p=2",
		"http://x/list?p=4",
		"http://x/list?p=6",
	}, pageURLs(n))
}

// TestPageURL_DefaultStep verifies a zero step counts by one
func TestPageURL_DefaultStep(t *testing.T) {
	n := sampleNode("paged")
	assert.Equal(t, []string{"http://x/list?p=1", "http://x/list?p=2"}, pageURLs(n))
}

// TestPageURL_Single verifies single mode uses the URL verbatim
func TestPageURL_Single(t *testing.T) {
	n := sampleNode("single")
	n.SourceMode = ModeSingle
	n.ListURL = "http://x/all"
	assert.Equal(t, 1, n.PageCount())
	assert.Equal(t, []string{"http://x/all"}, pageURLs(n))
}

// TestPageURL_OutOfRange verifies cursors outside 1..count are rejected
func TestPageURL_OutOfRange(t *testing.T) {
	n := sampleNode("paged")
	for _, cursor := range []int{0, -1, 3} {
		_, ok := n.PageURL(cursor)
		assert.False(t, ok, cursor)
	}
}

// TestPageURL_RangeAtMaxInt verifies a range ending at the largest int
// neither wraps nor enumerates pages
func TestPageURL_RangeAtMaxInt(t *testing.T) {
	n := sampleNode("edge")
	n.PageStart = math.MaxInt - 1
	n.PageEnd = math.MaxInt

	assert.Equal(t, 2, n.PageCount())
	last, ok := n.PageURL(2)
	require.True(t, ok)
	assert.Equal(t, "http://x/list?p="+strconv.Itoa(math.MaxInt), last)
	assert.NoError(t, n.Validate())

	n.PageStart = 0
	assert.Equal(t, math.MaxInt, n.PageCount())
	u, ok := n.PageURL(math.MaxInt)
	require.True(t, ok)
	assert.Equal(t, "http://x/list?p="+strconv.Itoa(math.MaxInt-1), u)
}

// TestValidate_PageRangeTooLarge verifies huge page ranges are rejected
func TestValidate_PageRangeTooLarge(t *testing.T) {
	n := sampleNode("huge")
	n.PageEnd = MaxPages + 1

	var verr *ValidationError
	require.ErrorAs(t, n.Validate(), &verr)
	assert.Len(t, verr.Problems, 1)
	assert.Contains(t, verr.Problems[0], "page range")

	n.PageEnd = MaxPages
	assert.NoError(t, n.Validate())
}

// TestValidate_Valid verifies a complete node passes
func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, sampleNode("ok").Validate())
}

// TestValidate_TitleRuleOptional verifies an unset title rule is allowed
func TestValidate_TitleRuleOptional(t *testing.T) {
	n := sampleNode("no-title")
	n.TitleRule = extract.Rule{}
	assert.NoError(t, n.Validate())
}

// TestValidate_Problems verifies each invalid configuration is reported
func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(n *Node)
		problem string
	}{
		{"missing name", func(n *Node) { n.Name = " " }, "name is required"},
		{"bad kind", func(n *Node) { n.TargetKind = "video" }, "target_kind"},
		{"missing list url", func(n *Node) { n.ListURL = "" }, "list_url is required"},
		{"no placeholder", func(n *Node) { n.ListURL = "http://x/list" }, "must contain {page}"},
		{"reversed range", func(n *Node) { n.PageEnd = 0 }, "page_end"},
		{"bad mode", func(n *Node) { n.SourceMode = "crawl" }, "source_mode"},
		{"missing url rule", func(n *Node) { n.URLRule = extract.Rule{} }, "url_rule is required"},
		{"bad url regex", func(n *Node) { n.URLRule = extract.Rule{Type: extract.RuleRegex, Pattern: "(["} }, "url_rule"},
		{"bad title xpath", func(n *Node) { n.TitleRule = extract.Rule{Type: extract.RuleXPath, Pattern: "//a["} }, "title_rule"},
		{"duplicate field", func(n *Node) { n.FieldRules = append(n.FieldRules, n.FieldRules[0]) }, "duplicate field"},
		{"empty mapping", func(n *Node) { n.Mappings = []FieldMapping{{Target: "title"}} }, "mappings[0]"},
		{"bad schedule", func(n *Node) { n.Schedule = "every day" }, "schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := sampleNode("bad")
			tt.mutate(n)

			err := n.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidNode), "should match ErrInvalidNode")

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Error(), tt.problem)
		})
	}
}

// TestValidate_SingleModeIgnoresRange verifies single mode needs no page range
func TestValidate_SingleModeIgnoresRange(t *testing.T) {
	n := sampleNode("single")
	n.SourceMode = ModeSingle
	n.ListURL = "http://x/all"
	n.PageStart = 0
	n.PageEnd = 0
	assert.NoError(t, n.Validate())
}

// TestFieldRule verifies lookup by name
func TestFieldRule(t *testing.T) {
	n := sampleNode("fields")

	fr, ok := n.FieldRule(FieldBody)
	assert.True(t, ok)
	assert.Equal(t, "div.body", fr.Rule.Pattern)

	_, ok = n.FieldRule(FieldCategory)
	assert.False(t, ok)
}
