// Package pipeline runs the collection stages for a node: discovery of
// content URLs on listing pages, extraction of fields from detail pages,
// and import of mapped records through a gateway. Every stage call does one
// bounded unit of work; Controller strings calls together with Tokens.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/collect/fetch"
	"github.com/pevans/collect/gateway"
	"github.com/pevans/collect/history"
	"github.com/pevans/collect/lock"
	"github.com/pevans/collect/mapping"
	"github.com/pevans/collect/metrics"
	"github.com/pevans/collect/node"
	"github.com/pevans/collect/staging"
	"go.uber.org/zap"
)

// Default batch sizes.
const (
	DefaultExtractBatch = 20
	DefaultImportBatch  = 20
)

// Custom errors for pipeline operations
var (
	ErrCursorOutOfRange = errors.New("page cursor out of range")
	ErrNodeBusy         = errors.New("node is being processed by another run")
)

// CategoryPolicy decides what happens to a record whose category name is
// not in the lookup table.
type CategoryPolicy string

const (
	// CategoryOmit imports the record without the category field.
	CategoryOmit CategoryPolicy = "omit"
	// CategoryHold keeps the item extracted, with a message, for review.
	CategoryHold CategoryPolicy = "hold"
)

// Options tunes the stages.
type Options struct {
	ExtractBatch   int            `yaml:"extract_batch"`
	ImportBatch    int            `yaml:"import_batch"`
	CategoryPolicy CategoryPolicy `yaml:"category_policy"`
}

func (o Options) withDefaults() Options {
	if o.ExtractBatch <= 0 {
		o.ExtractBatch = DefaultExtractBatch
	}
	if o.ImportBatch <= 0 {
		o.ImportBatch = DefaultImportBatch
	}
	if o.CategoryPolicy == "" {
		o.CategoryPolicy = CategoryOmit
	}
	return o
}

// Deps are the collaborators a Pipeline drives. Locker, Metrics and Logger
// are optional.
type Deps struct {
	Nodes   *node.Store
	History *history.Store
	Staging *staging.Store
	Fetcher fetch.Fetcher
	Mapper  *mapping.Mapper
	Gateway gateway.Gateway
	Locker  lock.Locker
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Pipeline runs stages against the stores.
type Pipeline struct {
	nodes   *node.Store
	history *history.Store
	staging *staging.Store
	fetcher fetch.Fetcher
	mapper  *mapping.Mapper
	gateway gateway.Gateway
	locker  lock.Locker
	metrics *metrics.Metrics
	logger  *zap.Logger
	opts    Options
	now     func() time.Time
}

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Mapper == nil {
		deps.Mapper = mapping.New(nil, nil)
	}

	return &Pipeline{
		nodes:   deps.Nodes,
		history: deps.History,
		staging: deps.Staging,
		fetcher: deps.Fetcher,
		mapper:  deps.Mapper,
		gateway: deps.Gateway,
		locker:  deps.Locker,
		metrics: deps.Metrics,
		logger:  deps.Logger.Named("pipeline"),
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Context is the state one stage call works from: a snapshot of the node,
// where progress lines go, and the time the call started. Stages never
// modify it.
type Context struct {
	Node     node.Node
	Progress io.Writer
	Now      time.Time
}

// NewContext loads a snapshot of node id. A nil progress discards output.
func (p *Pipeline) NewContext(ctx context.Context, id uuid.UUID, progress io.Writer) (Context, error) {
	n, err := p.nodes.Get(ctx, id)
	if err != nil {
		return Context{}, err
	}
	if progress == nil {
		progress = io.Discard
	}
	return Context{
		Node:     *n,
		Progress: progress,
		Now:      p.now(),
	}, nil
}

func (pc Context) printf(format string, args ...any) {
	fmt.Fprintf(pc.Progress, format+"\n", args...)
}

// withNodeLock runs fn while holding node id's advisory lock.
func (p *Pipeline) withNodeLock(ctx context.Context, id uuid.UUID, fn func() error) error {
	release, err := p.locker.TryLock(ctx, "node:"+id.String())
	if errors.Is(err, lock.ErrLocked) {
		return fmt.Errorf("%w: %s", ErrNodeBusy, id)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("failed to release node lock", zap.Stringer("node", id), zap.Error(err))
		}
	}()

	return fn()
}

// DeleteNode deletes a node together with its staged items. With
// purgeHistory its URL hashes are forgotten too, so a recreated node can
// discover the same URLs again.
func (p *Pipeline) DeleteNode(ctx context.Context, id uuid.UUID, purgeHistory bool) error {
	if _, err := p.nodes.Get(ctx, id); err != nil {
		return err
	}

	return p.withNodeLock(ctx, id, func() error {
		items, err := p.staging.DeleteNode(ctx, id)
		if err != nil {
			return err
		}

		var forgotten int64
		if purgeHistory {
			if forgotten, err = p.history.ForgetNode(ctx, id); err != nil {
				return err
			}
		}

		if err := p.nodes.Delete(ctx, id); err != nil {
			return err
		}

		p.logger.Info("deleted node",
			zap.Stringer("node", id),
			zap.Int64("staged_items", items),
			zap.Int64("history", forgotten),
		)
		return nil
	})
}

// PurgeItem deletes a staged item and forgets its URL so the next
// discovery pass stages it again. It holds the item's node lock, so it
// fails with ErrNodeBusy while a stage runs on that node.
func (p *Pipeline) PurgeItem(ctx context.Context, itemID int64) (*staging.Item, error) {
	item, err := p.staging.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}

	err = p.withNodeLock(ctx, item.NodeID, func() error {
		if item, err = p.staging.Delete(ctx, itemID); err != nil {
			return err
		}
		return p.history.Forget(ctx, item.URL)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}
