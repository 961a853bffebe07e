package pipeline

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageDiscover Stage = "discover"
	StageExtract  Stage = "extract"
	StageImport   Stage = "import"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageDiscover, StageExtract, StageImport:
		return true
	}
	return false
}

// Totals accumulates counts across the calls of one run.
type Totals struct {
	Found         int `json:"found"`
	New           int `json:"new"`
	Duplicates    int `json:"duplicates"`
	Malformed     int `json:"malformed"`
	FetchFailures int `json:"fetch_failures"`
	Extracted     int `json:"extracted"`
	Imported      int `json:"imported"`
	Failed        int `json:"failed"`
	Held          int `json:"held"`
}

// Token is everything needed to resume a run: which stage and node, where
// the stage got to, and what has been counted so far. Cursor is the next
// listing page for discovery and the last item ID seen for import;
// extraction needs none because it always takes the oldest discovered
// items. Chain runs every stage in turn, importing each extraction batch
// right away.
type Token struct {
	Stage      Stage     `json:"stage"`
	NodeID     uuid.UUID `json:"node_id"`
	Cursor     int64     `json:"cursor"`
	TotalPages int       `json:"total_pages"`
	Batch      int       `json:"batch"`
	Chain      bool      `json:"chain"`
	Totals     Totals    `json:"totals"`
	Done       bool      `json:"done"`
}

// Start returns the token that begins stage for node.
func Start(stage Stage, nodeID uuid.UUID, batch int, chain bool) Token {
	tok := Token{
		Stage:  stage,
		NodeID: nodeID,
		Batch:  batch,
		Chain:  chain,
	}
	if stage == StageDiscover {
		tok.Cursor = 1
	}
	return tok
}

// Encode returns the token as query parameters.
func (t Token) Encode() url.Values {
	v := url.Values{}
	v.Set("stage", string(t.Stage))
	v.Set("node", t.NodeID.String())
	v.Set("cursor", strconv.FormatInt(t.Cursor, 10))
	v.Set("total", strconv.Itoa(t.TotalPages))
	v.Set("batch", strconv.Itoa(t.Batch))
	v.Set("chain", strconv.FormatBool(t.Chain))
	v.Set("done", strconv.FormatBool(t.Done))

	for name, n := range t.Totals.fields() {
		v.Set(name, strconv.Itoa(*n))
	}
	return v
}

// DecodeToken parses query parameters produced by Encode. Missing counters
// and flags default to zero.
func DecodeToken(v url.Values) (Token, error) {
	var t Token

	t.Stage = Stage(v.Get("stage"))
	if !t.Stage.Valid() {
		return t, fmt.Errorf("invalid stage %q", v.Get("stage"))
	}

	id, err := uuid.Parse(v.Get("node"))
	if err != nil {
		return t, fmt.Errorf("invalid node: %w", err)
	}
	t.NodeID = id

	if t.Cursor, err = parseInt64(v, "cursor"); err != nil {
		return t, err
	}
	if t.TotalPages, err = parseInt(v, "total"); err != nil {
		return t, err
	}
	if t.Batch, err = parseInt(v, "batch"); err != nil {
		return t, err
	}
	if t.Chain, err = parseBool(v, "chain"); err != nil {
		return t, err
	}
	if t.Done, err = parseBool(v, "done"); err != nil {
		return t, err
	}

	for name, n := range t.Totals.fields() {
		if *n, err = parseInt(v, name); err != nil {
			return t, err
		}
	}

	return t, nil
}

func (t *Totals) fields() map[string]*int {
	return map[string]*int{
		"found":          &t.Found,
		"new":            &t.New,
		"duplicates":     &t.Duplicates,
		"malformed":      &t.Malformed,
		"fetch_failures": &t.FetchFailures,
		"extracted":      &t.Extracted,
		"imported":       &t.Imported,
		"failed":         &t.Failed,
		"held":           &t.Held,
	}
}

func parseInt64(v url.Values, name string) (int64, error) {
	s := v.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

func parseInt(v url.Values, name string) (int, error) {
	n, err := parseInt64(v, name)
	return int(n), err
}

func parseBool(v url.Values, name string) (bool, error) {
	s := v.Get(name)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", name, s)
	}
	return b, nil
}
