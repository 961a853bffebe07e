package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pevans/collect/extract"
	"github.com/pevans/collect/fetch"
	"github.com/pevans/collect/node"
	"github.com/pevans/collect/staging"
	"go.uber.org/zap"
)

// ExtractedItem is the outcome for one item of an extraction batch.
type ExtractedItem struct {
	ID      int64  `json:"id"`
	URL     string `json:"url"`
	Fetched bool   `json:"fetched"`
	Fields  int    `json:"fields"`
	Error   string `json:"error,omitempty"`
	// Skipped is set when the item had already left the discovered state.
	Skipped bool `json:"skipped,omitempty"`
}

// ExtractReport describes one extraction call.
type ExtractReport struct {
	Items []ExtractedItem `json:"items"`
	// Remaining counts the node's items still awaiting extraction.
	Remaining int64 `json:"remaining"`
}

// IDs returns the IDs of the items marked extracted by the call.
func (r ExtractReport) IDs() []int64 {
	var ids []int64
	for _, it := range r.Items {
		if !it.Skipped {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// Extract takes up to batch of pc's node's discovered items, oldest first,
// fetches each detail page and stores the fields its rules produce. An item
// whose page cannot be fetched is still marked extracted, with only the
// fields known from discovery. A batch of zero or less uses the configured
// size.
func (p *Pipeline) Extract(ctx context.Context, pc Context, batch int) (ExtractReport, error) {
	var rep ExtractReport
	err := p.withNodeLock(ctx, pc.Node.ID, func() error {
		var err error
		rep, err = p.extract(ctx, pc, batch)
		return err
	})
	return rep, err
}

func (p *Pipeline) extract(ctx context.Context, pc Context, batch int) (ExtractReport, error) {
	start := time.Now()
	n := &pc.Node
	if batch <= 0 {
		batch = p.opts.ExtractBatch
	}

	items, err := p.staging.NextDiscovered(ctx, n.ID, batch)
	if err != nil {
		return ExtractReport{}, err
	}

	rep := ExtractReport{Items: make([]ExtractedItem, 0, len(items))}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		out := ExtractedItem{ID: item.ID, URL: item.URL}

		body, err := p.fetcher.Fetch(ctx, fetch.Request{URL: item.URL, Charset: n.Charset})
		var payload map[string]string
		if err != nil {
			out.Error = err.Error()
			payload = basePayload(item)
			pc.printf("item %d %s: fetch failed: %v", item.ID, item.URL, err)
		} else {
			out.Fetched = true
			payload = p.applyFieldRules(pc, item, extract.NewPage(item.URL, body))
		}
		out.Fields = len(payload)

		if err := p.staging.MarkExtracted(ctx, item.ID, payload); err != nil {
			if !errors.Is(err, staging.ErrInvalidTransition) {
				return rep, err
			}
			out.Skipped = true
			out.Error = err.Error()
			pc.printf("item %d %s: %v", item.ID, item.URL, err)
			rep.Items = append(rep.Items, out)
			continue
		}

		if out.Fetched {
			pc.printf("item %d %s: extracted %d fields", item.ID, item.URL, out.Fields)
		}
		p.metrics.Extraction(n.Name, out.Fetched)
		rep.Items = append(rep.Items, out)
	}

	rep.Remaining, err = p.staging.Count(ctx, n.ID, staging.StatusDiscovered)
	if err != nil {
		return rep, err
	}

	p.metrics.ObserveStep(string(StageExtract), time.Since(start))
	p.logger.Info("extracted batch",
		zap.String("node", n.Name),
		zap.Int("items", len(rep.Items)),
		zap.Int64("remaining", rep.Remaining),
	)

	return rep, nil
}

// basePayload holds the fields every item has from discovery.
func basePayload(item staging.Item) map[string]string {
	payload := map[string]string{node.FieldURL: item.URL}
	if item.Title != "" {
		payload[node.FieldTitle] = item.Title
	}
	return payload
}

// applyFieldRules runs every field rule of the node against page. Empty
// results are left out, except that title falls back to the discovered one.
func (p *Pipeline) applyFieldRules(pc Context, item staging.Item, page *extract.Page) map[string]string {
	payload := basePayload(item)

	for _, fr := range pc.Node.FieldRules {
		value, err := fieldValue(fr, page)
		if err != nil {
			pc.printf("item %d: field %s: %v", item.ID, fr.Name, err)
			continue
		}
		if value != "" {
			payload[fr.Name] = value
		}
	}

	return payload
}

// fieldValue returns the first match of the field's HTML rule verbatim,
// falling back to its plain rule with markup stripped.
func fieldValue(fr node.FieldRule, page *extract.Page) (string, error) {
	if fr.HTMLRule != nil {
		ex, err := extract.Compile(*fr.HTMLRule)
		if err != nil {
			return "", err
		}
		v, err := extract.First(ex, page)
		if err != nil {
			return "", err
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}

	if fr.Rule.IsZero() {
		return "", nil
	}
	ex, err := extract.Compile(fr.Rule)
	if err != nil {
		return "", err
	}
	v, err := extract.First(ex, page)
	if err != nil {
		return "", err
	}
	return extract.StripMarkup(v), nil
}
