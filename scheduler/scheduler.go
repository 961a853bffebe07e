// Package scheduler runs nodes that carry a cron schedule to completion
// without an operator.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/collect/node"
	"github.com/pevans/collect/pipeline"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner runs every stage of a node.
type Runner interface {
	RunAll(ctx context.Context, nodeID uuid.UUID, progress io.Writer) (pipeline.Token, error)
}

// NodeLister lists the nodes to schedule.
type NodeLister interface {
	List(ctx context.Context, filter node.Filter) ([]node.Node, error)
}

type entry struct {
	id       cron.EntryID
	schedule string
	name     string
}

// Scheduler keeps one cron entry per scheduled node.
type Scheduler struct {
	nodes  NodeLister
	runner Runner
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]entry
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. Call Start to begin running jobs.
func New(nodes NodeLister, runner Runner, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		nodes:   nodes,
		runner:  runner,
		cron:    cron.New(cron.WithLogger(cronLogger{logger.Sugar()})),
		logger:  logger,
		entries: make(map[uuid.UUID]entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Sync brings the cron entries in line with the stored nodes: new
// schedules are added, changed ones replaced and those of deleted or
// unscheduled nodes removed. It returns the number of scheduled nodes.
func (s *Scheduler) Sync(ctx context.Context) (int, error) {
	nodes, err := s.nodes.List(ctx, node.Filter{Scheduled: true})
	if err != nil {
		return 0, fmt.Errorf("failed to list scheduled nodes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[uuid.UUID]bool, len(nodes))
	for _, n := range nodes {
		keep[n.ID] = true

		if e, ok := s.entries[n.ID]; ok {
			if e.schedule == n.Schedule {
				continue
			}
			s.cron.Remove(e.id)
			delete(s.entries, n.ID)
		}

		id := n.ID
		entryID, err := s.cron.AddFunc(n.Schedule, func() { s.run(id) })
		if err != nil {
			// Logged and skipped; the other nodes still run
			s.logger.Error("failed to schedule node",
				zap.String("node", n.Name),
				zap.String("schedule", n.Schedule),
				zap.Error(err),
			)
			continue
		}
		s.entries[id] = entry{id: entryID, schedule: n.Schedule, name: n.Name}
		s.logger.Info("scheduled node", zap.String("node", n.Name), zap.String("schedule", n.Schedule))
	}

	for id, e := range s.entries {
		if !keep[id] {
			s.cron.Remove(e.id)
			delete(s.entries, id)
			s.logger.Info("unscheduled node", zap.String("node", e.name))
		}
	}

	return len(s.entries), nil
}

// Start syncs the schedule, starts the cron loop and re-syncs every
// interval until ctx is done or Stop is called. An interval of zero or less
// disables re-syncing.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if _, err := s.Sync(ctx); err != nil {
		return err
	}
	s.cron.Start()

	if interval > 0 {
		go s.watch(ctx, interval)
	}
	return nil
}

func (s *Scheduler) watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil {
				s.logger.Error("failed to sync schedule", zap.Error(err))
			}
		}
	}
}

// Stop stops scheduling new runs, cancels running ones and waits for them
// to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Schedules returns the cron schedule of every scheduled node.
func (s *Scheduler) Schedules() map[uuid.UUID]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uuid.UUID]string, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.schedule
	}
	return out
}

// Next returns when node id runs next.
func (s *Scheduler) Next(id uuid.UUID) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(e.id).Next, true
}

// run is the cron job for one node.
func (s *Scheduler) run(id uuid.UUID) {
	start := time.Now()
	tok, err := s.runner.RunAll(s.ctx, id, nil)
	switch {
	case errors.Is(err, pipeline.ErrNodeBusy):
		s.logger.Info("skipped scheduled run, node busy", zap.Stringer("node", id))
	case errors.Is(err, node.ErrNodeNotFound):
		s.logger.Warn("scheduled node no longer exists", zap.Stringer("node", id))
	case err != nil:
		s.logger.Error("scheduled run failed", zap.Stringer("node", id), zap.Error(err))
	default:
		s.logger.Info("scheduled run finished",
			zap.Stringer("node", id),
			zap.Int("new", tok.Totals.New),
			zap.Int("imported", tok.Totals.Imported),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
