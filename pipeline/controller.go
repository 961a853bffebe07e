package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Controller advances runs one Token at a time.
type Controller struct {
	p *Pipeline
}

// NewController creates a controller over p.
func NewController(p *Pipeline) *Controller {
	return &Controller{p: p}
}

// Pipeline returns the pipeline the controller drives.
func (c *Controller) Pipeline() *Pipeline {
	return c.p
}

// Step does one bounded unit of work for tok and returns the token to
// continue with. A done token is returned unchanged.
func (c *Controller) Step(ctx context.Context, tok Token, progress io.Writer) (Token, error) {
	if tok.Done {
		return tok, nil
	}
	if !tok.Stage.Valid() {
		return tok, fmt.Errorf("invalid stage %q", tok.Stage)
	}

	pc, err := c.p.NewContext(ctx, tok.NodeID, progress)
	if err != nil {
		return tok, err
	}

	next := tok
	switch tok.Stage {
	case StageDiscover:
		err = c.stepDiscover(ctx, pc, &next)
	case StageExtract:
		err = c.stepExtract(ctx, pc, &next)
	case StageImport:
		err = c.stepImport(ctx, pc, &next)
	}
	if err != nil {
		return tok, err
	}

	if next.Done {
		t := next.Totals
		pc.printf("done: %d found, %d new, %d duplicate, %d malformed, %d fetch failures, %d extracted, %d imported, %d failed, %d held",
			t.Found, t.New, t.Duplicates, t.Malformed, t.FetchFailures, t.Extracted, t.Imported, t.Failed, t.Held)
	}
	return next, nil
}

func (c *Controller) stepDiscover(ctx context.Context, pc Context, next *Token) error {
	cursor := int(next.Cursor)
	if cursor == 0 {
		cursor = 1
	}

	rep, err := c.p.Discover(ctx, pc, cursor)
	if err != nil {
		return err
	}

	next.TotalPages = rep.TotalPages
	next.Totals.Found += rep.Found
	next.Totals.New += rep.New
	next.Totals.Duplicates += rep.Duplicates
	next.Totals.Malformed += rep.Malformed
	if rep.FetchError != "" {
		next.Totals.FetchFailures++
	}

	if cursor < rep.TotalPages {
		next.Cursor = int64(cursor + 1)
		return nil
	}

	if next.Chain {
		next.Stage = StageExtract
		next.Cursor = 0
		return nil
	}
	next.Done = true
	return nil
}

func (c *Controller) stepExtract(ctx context.Context, pc Context, next *Token) error {
	rep, err := c.p.Extract(ctx, pc, next.Batch)
	if err != nil {
		return err
	}

	ids := rep.IDs()
	next.Totals.Extracted += len(ids)
	for _, it := range rep.Items {
		if !it.Fetched && !it.Skipped {
			next.Totals.FetchFailures++
		}
	}

	if next.Chain && len(ids) > 0 {
		imp, err := c.p.Import(ctx, pc, Selection{IDs: ids})
		if err != nil {
			return err
		}
		addImport(&next.Totals, imp)
	}

	next.Done = rep.Remaining == 0 || len(rep.Items) == 0
	return nil
}

func (c *Controller) stepImport(ctx context.Context, pc Context, next *Token) error {
	rep, err := c.p.Import(ctx, pc, Selection{After: next.Cursor, Limit: next.Batch})
	if err != nil {
		return err
	}

	addImport(&next.Totals, rep)
	next.Cursor = rep.LastID

	more, err := c.p.staging.ExtractedAfter(ctx, pc.Node.ID, rep.LastID, 1)
	if err != nil {
		return err
	}
	next.Done = len(rep.Items) == 0 || len(more) == 0
	return nil
}

func addImport(t *Totals, rep ImportReport) {
	t.Imported += rep.Imported
	t.Failed += rep.Failed
	t.Held += rep.Held
}

// RunToCompletion steps tok until it is done or ctx is canceled.
func (c *Controller) RunToCompletion(ctx context.Context, tok Token, progress io.Writer) (Token, error) {
	for !tok.Done {
		if err := ctx.Err(); err != nil {
			return tok, err
		}

		next, err := c.Step(ctx, tok, progress)
		if err != nil {
			return tok, err
		}
		tok = next
	}
	return tok, nil
}

// RunAll discovers every listing page of a node, then extracts and imports
// everything it found.
func (c *Controller) RunAll(ctx context.Context, nodeID uuid.UUID, progress io.Writer) (Token, error) {
	c.p.logger.Info("starting full run", zap.Stringer("node", nodeID))
	tok, err := c.RunToCompletion(ctx, Start(StageDiscover, nodeID, c.p.opts.ExtractBatch, true), progress)
	if err != nil {
		c.p.logger.Error("full run failed", zap.Stringer("node", nodeID), zap.Error(err))
		return tok, err
	}
	c.p.logger.Info("finished full run",
		zap.Stringer("node", nodeID),
		zap.Int("new", tok.Totals.New),
		zap.Int("imported", tok.Totals.Imported),
	)
	return tok, nil
}
