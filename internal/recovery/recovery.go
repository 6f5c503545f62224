// Package recovery is the background sweep that keeps the Event Store's
// durable log in sync with its two projections and unsticks workflows left
// mid-step by a crash.
package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/client-go/util/workqueue"

	"github.com/marketgrid/onboardengine/internal/bookmark"
	"github.com/marketgrid/onboardengine/internal/config"
	"github.com/marketgrid/onboardengine/internal/eventstore"
	"github.com/marketgrid/onboardengine/internal/indexstore"
	"github.com/marketgrid/onboardengine/internal/statemachine"
	"github.com/marketgrid/onboardengine/internal/statestore"
	"github.com/marketgrid/onboardengine/internal/template"
	"github.com/marketgrid/onboardengine/internal/tenant"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

type itemKind int

const (
	kindReproject itemKind = iota
	kindBookmarkExpiry
)

// workItem is what the rate-limiting queue carries; a single item type lets
// one worker pool drain both sweeps.
type workItem struct {
	kind       itemKind
	workflowID uuid.UUID
	bookmarkID uuid.UUID
}

// Loop periodically finds workflows whose Index/State Store projections
// have fallen behind the Event Store (including ones a crash left mid-step,
// which look identical to ordinary lag until replayed) and bookmarks whose
// expiry has passed, and repairs each through the rate-limited workqueue so
// a repeatedly failing workflow backs off instead of being retried in a
// tight loop.
type Loop struct {
	events    eventstore.Store
	index     indexstore.Store
	state     statestore.Store
	bookmarks bookmark.Store
	templates *template.Registry
	cfg       config.RecoveryConfig
	logger    *zap.Logger

	queue workqueue.RateLimitingInterface

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	adminTC tenantctx.Context
}

// New builds a Loop. adminTC is a cross-tenant market_ops context used for
// every store call the loop makes, since staleness can occur in any
// tenant's workflows and the sweep itself is infrastructure, not a
// tenant-initiated request.
func New(
	events eventstore.Store,
	index indexstore.Store,
	state statestore.Store,
	bookmarks bookmark.Store,
	templates *template.Registry,
	cfg config.RecoveryConfig,
	logger *zap.Logger,
) (*Loop, error) {
	adminTC, err := tenantctx.New(tenant.Actor{ID: uuid.New(), Role: tenant.RoleMarketOps}, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("recovery: build admin context: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		events: events, index: index, state: state, bookmarks: bookmarks, templates: templates,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "recovery")),
		queue: workqueue.NewRateLimitingQueue(
			workqueue.NewItemExponentialFailureRateLimiter(1*time.Second, 5*time.Minute),
		),
		ctx: ctx, cancel: cancel, adminTC: adminTC,
	}, nil
}

// Start launches the two poll loops and the worker pool. A no-op when the
// loop is disabled in configuration.
func (l *Loop) Start() {
	if !l.cfg.Enabled {
		l.logger.Info("recovery loop disabled, not starting")
		return
	}
	l.logger.Info("starting recovery loop",
		zap.Duration("scan_interval", l.cfg.ScanInterval),
		zap.Duration("bookmark_sweep_interval", l.cfg.BookmarkSweepInterval),
		zap.Int("workers", l.cfg.Workers))

	l.wg.Add(1)
	go l.scanLoop()

	l.wg.Add(1)
	go l.bookmarkSweepLoop()

	for i := 0; i < l.cfg.Workers; i++ {
		l.wg.Add(1)
		go l.runWorker(i)
	}
}

// Stop signals shutdown and waits for in-flight items to drain, up to
// ShutdownTimeout.
func (l *Loop) Stop() error {
	l.logger.Info("stopping recovery loop", zap.Int("queue_depth", l.queue.Len()))
	l.cancel()
	l.queue.ShutDown()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("recovery loop stopped gracefully")
		return nil
	case <-time.After(l.cfg.ShutdownTimeout):
		l.logger.Warn("recovery shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("recovery: shutdown timeout exceeded")
	}
}

// IsReady reports whether the loop's queue is accepting work, for the
// health server's readiness check.
func (l *Loop) IsReady() bool {
	return l.queue != nil && !l.queue.ShuttingDown()
}

func (l *Loop) scanLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.ScanInterval)
	defer ticker.Stop()

	l.logger.Info("projection scan loop started")
	for {
		select {
		case <-l.ctx.Done():
			l.logger.Info("projection scan loop stopped")
			return
		case <-ticker.C:
			l.scanForStaleness()
		}
	}
}

func (l *Loop) bookmarkSweepLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.BookmarkSweepInterval)
	defer ticker.Stop()

	l.logger.Info("bookmark sweep loop started")
	for {
		select {
		case <-l.ctx.Done():
			l.logger.Info("bookmark sweep loop stopped")
			return
		case <-ticker.C:
			l.scanExpiredBookmarks()
		}
	}
}

// scanForStaleness enqueues every in_progress workflow whose Event Store
// log extends past what the Index Store has projected. This single check
// covers both the ordinary projection-lag case and the crash-recovery case
// (a STEP_STARTED with no terminal follow-up): the latter is not itself
// distinguishable from lag by sequence numbers alone, so
// reproject always replays and reapplies rather than special-casing "was
// this a crash".
func (l *Loop) scanForStaleness() {
	ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
	defer cancel()

	rows, err := l.index.Query(ctx, l.adminTC, indexstore.Filter{Status: workflow.StatusInProgress}, indexstore.Page{Limit: 1000})
	if err != nil {
		l.logger.Error("failed to list in-progress workflows for recovery scan", zap.Error(err))
		return
	}

	for _, row := range rows {
		events, err := l.events.GetEvents(ctx, row.ID, eventstore.GetEventsFilter{FromSeq: row.ProjectedSequenceNo + 1})
		if err != nil {
			l.logger.Warn("failed to check projection lag", zap.String("workflow_id", row.ID.String()), zap.Error(err))
			continue
		}
		if len(events) == 0 {
			continue
		}
		if int64(len(events)) >= int64(l.projectionLagThreshold()) {
			l.logger.Info("projection lag exceeds threshold, enqueuing reprojection",
				zap.String("workflow_id", row.ID.String()), zap.Int("lag_events", len(events)))
		}
		l.queue.Add(workItem{kind: kindReproject, workflowID: row.ID})
	}
}

func (l *Loop) projectionLagThreshold() int {
	return 1
}

func (l *Loop) scanExpiredBookmarks() {
	ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
	defer cancel()

	expired, err := l.bookmarks.ListExpired(ctx)
	if err != nil {
		l.logger.Error("failed to list expired bookmarks", zap.Error(err))
		return
	}
	for _, bm := range expired {
		l.queue.Add(workItem{kind: kindBookmarkExpiry, bookmarkID: bm.BookmarkID, workflowID: bm.WorkflowID})
	}
}

func (l *Loop) runWorker(id int) {
	defer l.wg.Done()
	l.logger.Info("recovery worker started", zap.Int("worker_id", id))
	for {
		raw, shutdown := l.queue.Get()
		if shutdown {
			l.logger.Info("recovery worker stopped", zap.Int("worker_id", id))
			return
		}
		l.process(raw)
	}
}

func (l *Loop) process(raw interface{}) {
	defer l.queue.Done(raw)

	it, ok := raw.(workItem)
	if !ok {
		l.logger.Error("invalid item type in recovery queue", zap.Any("item", raw))
		return
	}

	var err error
	switch it.kind {
	case kindReproject:
		err = l.reproject(it.workflowID)
	case kindBookmarkExpiry:
		err = l.expireBookmark(it.bookmarkID)
	}
	if err != nil {
		l.logger.Error("recovery item failed, retrying with backoff",
			zap.String("workflow_id", it.workflowID.String()), zap.Error(err))
		l.queue.AddRateLimited(raw)
		return
	}
	l.queue.Forget(raw)
}

// reproject replays workflowID's full event log and writes the result back
// through the State Store's optimistic-concurrency path and the Index
// Store, applying the same statemachine.DeriveStatus layering the online
// Engine path applies so that a reprojected workflow never disagrees with
// one the Engine projected directly.
func (l *Loop) reproject(workflowID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
	defer cancel()

	current, err := l.state.Get(ctx, l.adminTC, workflowID)
	if err != nil {
		return fmt.Errorf("recovery: reproject: load current state: %w", err)
	}

	replayed, err := l.events.Replay(ctx, workflowID, 0, &workflow.Instance{StepStates: map[string]workflow.StepState{}}, statemachine.Apply)
	if err != nil {
		return fmt.Errorf("recovery: reproject: replay: %w", err)
	}

	tmpl, err := l.templates.Get(replayed.MarketRole, replayed.TemplateVersion)
	if err != nil {
		return fmt.Errorf("recovery: reproject: load template: %w", err)
	}
	replayed = statemachine.DeriveStatus(replayed, tmpl)
	replayed.Version = current.Version

	if err := l.state.UpdateState(ctx, l.adminTC, replayed, current.Version); err != nil {
		return fmt.Errorf("recovery: reproject: update state: %w", err)
	}
	if err := l.index.UpdateStatus(ctx, l.adminTC, workflowID, replayed.Status, replayed.CurrentStepID, replayed.LastSequenceNo); err != nil {
		return fmt.Errorf("recovery: reproject: update index: %w", err)
	}

	l.logger.Info("reprojected workflow",
		zap.String("workflow_id", workflowID.String()),
		zap.String("status", string(replayed.Status)),
		zap.Int64("sequence_no", replayed.LastSequenceNo))
	return nil
}

// expireBookmark marks a bookmark past its deadline inactive. The Engine's
// online path never observes this transition directly; a later
// resume_bookmark call against the now-inactive bookmark surfaces
// workflow.ErrBookmarkExpired the same way an explicit Expire call would.
func (l *Loop) expireBookmark(bookmarkID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(l.ctx, 10*time.Second)
	defer cancel()

	if err := l.bookmarks.Expire(ctx, bookmarkID); err != nil {
		return fmt.Errorf("recovery: expire bookmark: %w", err)
	}
	l.logger.Info("expired bookmark", zap.String("bookmark_id", bookmarkID.String()))
	return nil
}
