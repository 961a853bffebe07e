package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/collect/staging"
	"go.uber.org/zap"
)

// Selection picks the items an import call works on. With IDs set exactly
// those items are used; otherwise up to Limit extracted items with an ID
// greater than After, lowest first.
type Selection struct {
	IDs   []int64
	After int64
	Limit int
}

// Import outcomes.
const (
	OutcomeImported = "imported"
	OutcomeFailed   = "failed"
	OutcomeHeld     = "held"
	OutcomeSkipped  = "skipped"
)

// ImportedItem is the outcome for one item of an import batch.
type ImportedItem struct {
	ID      int64  `json:"id"`
	URL     string `json:"url"`
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

// ImportReport describes one import call.
type ImportReport struct {
	Items    []ImportedItem `json:"items"`
	Imported int            `json:"imported"`
	Failed   int            `json:"failed"`
	Held     int            `json:"held"`
	// LastID is the highest item ID looked at, the keyset cursor for the
	// next call.
	LastID int64 `json:"last_id"`
}

// Attempted counts the items handed to the gateway.
func (r ImportReport) Attempted() int {
	return r.Imported + r.Failed
}

// Import maps each selected extracted item and hands it to the gateway.
// Accepted items become imported; rejected ones stay extracted with the
// gateway's message so a later call can retry them.
func (p *Pipeline) Import(ctx context.Context, pc Context, sel Selection) (ImportReport, error) {
	var rep ImportReport
	err := p.withNodeLock(ctx, pc.Node.ID, func() error {
		var err error
		rep, err = p.importItems(ctx, pc, sel)
		return err
	})
	return rep, err
}

func (p *Pipeline) importItems(ctx context.Context, pc Context, sel Selection) (ImportReport, error) {
	start := time.Now()
	n := &pc.Node

	var items []staging.Item
	var err error
	if sel.IDs != nil {
		items, err = p.staging.GetMany(ctx, n.ID, sel.IDs)
	} else {
		limit := sel.Limit
		if limit <= 0 {
			limit = p.opts.ImportBatch
		}
		items, err = p.staging.ExtractedAfter(ctx, n.ID, sel.After, limit)
	}
	if err != nil {
		return ImportReport{}, err
	}

	rep := ImportReport{
		Items:  make([]ImportedItem, 0, len(items)),
		LastID: sel.After,
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if item.ID > rep.LastID {
			rep.LastID = item.ID
		}

		out, err := p.importItem(ctx, pc, item)
		if err != nil {
			return rep, err
		}

		switch out.Outcome {
		case OutcomeImported:
			rep.Imported++
		case OutcomeFailed:
			rep.Failed++
		case OutcomeHeld:
			rep.Held++
		}
		if out.Outcome != OutcomeSkipped {
			p.metrics.Import(n.Name, out.Outcome)
		}
		pc.printf("item %d %s: %s %s", item.ID, item.URL, out.Outcome, out.Message)
		rep.Items = append(rep.Items, out)
	}

	p.metrics.ObserveStep(string(StageImport), time.Since(start))
	p.logger.Info("imported batch",
		zap.String("node", n.Name),
		zap.Int("imported", rep.Imported),
		zap.Int("failed", rep.Failed),
		zap.Int("held", rep.Held),
	)

	return rep, nil
}

// importItem handles one item. Only storage errors are returned; gateway
// and mapping failures are outcomes.
func (p *Pipeline) importItem(ctx context.Context, pc Context, item staging.Item) (ImportedItem, error) {
	out := ImportedItem{ID: item.ID, URL: item.URL}

	if item.Status != staging.StatusExtracted {
		out.Outcome = OutcomeSkipped
		out.Message = fmt.Sprintf("status is %s", item.Status)
		return out, nil
	}

	rec, err := p.mapper.Map(ctx, &pc.Node, item.URL, item.Payload)
	if err != nil {
		out.Outcome = OutcomeFailed
		out.Message = err.Error()
		return out, p.staging.SetMessage(ctx, item.ID, out.Message)
	}

	if len(rec.Unresolved) > 0 {
		msg := unresolvedMessage(rec.Unresolved)
		if p.opts.CategoryPolicy == CategoryHold {
			out.Outcome = OutcomeHeld
			out.Message = msg
			return out, p.staging.SetMessage(ctx, item.ID, msg)
		}
		pc.printf("item %d: %s, importing without it", item.ID, msg)
	}

	res, err := p.gateway.Import(ctx, pc.Node.TargetKind, rec)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.Outcome = OutcomeFailed
		out.Message = err.Error()
	case !res.Success:
		out.Outcome = OutcomeFailed
		out.Message = res.Message
	default:
		out.Outcome = OutcomeImported
		out.Message = res.Message
		if err := p.staging.MarkImported(ctx, item.ID, res.Message); err != nil {
			if errors.Is(err, staging.ErrInvalidTransition) {
				out.Outcome = OutcomeSkipped
				out.Message = err.Error()
				return out, nil
			}
			return out, err
		}
		return out, nil
	}

	return out, p.staging.SetMessage(ctx, item.ID, out.Message)
}

func unresolvedMessage(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	return "category " + strings.Join(quoted, ", ") + " unresolved"
}
