// Package eventstore is the append-only log of workflow events: the source
// of truth every other projection (Index Store, State Store) is derived
// from. Appends are serialized per workflow by an exclusive lock; replay is
// a pure fold of events into state.
package eventstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/workflow"
)

// GetEventsFilter narrows get_events to a sequence or time window.
type GetEventsFilter struct {
	FromSeq int64
	ToSeq   int64 // 0 means unbounded
	ToTime  time.Time
}

// Store is the Event Store's contract: append-only writes,
// ordered reads, and pure replay.
type Store interface {
	// Append assigns the next dense sequence_no for event.WorkflowID and
	// persists it. Returns the assigned event (with SequenceNo and
	// OccurredAt populated).
	Append(ctx context.Context, event workflow.Event) (workflow.Event, error)

	// AppendMany appends a batch atomically under the same per-workflow
	// lock acquisition, assigning consecutive sequence numbers.
	AppendMany(ctx context.Context, events []workflow.Event) ([]workflow.Event, error)

	// GetEvents returns events for workflowID in ascending sequence_no
	// order, restricted by filter.
	GetEvents(ctx context.Context, workflowID uuid.UUID, filter GetEventsFilter) ([]workflow.Event, error)

	// GetEventsByTenant returns events across every workflow owned by
	// tenantID within the given time range, newest first, bounded by limit.
	GetEventsByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time, limit int) ([]workflow.Event, error)

	// Replay folds events [0..untilSeq] (or the full log if untilSeq is 0)
	// for workflowID into a state value via Apply, starting from the
	// newest available snapshot at or before untilSeq.
	Replay(ctx context.Context, workflowID uuid.UUID, untilSeq int64, initial *workflow.Instance, apply ApplyFunc) (*workflow.Instance, error)

	// SaveSnapshot persists a point-in-time projected state keyed by the
	// sequence number it reflects, for Replay to use as a starting point.
	SaveSnapshot(ctx context.Context, workflowID uuid.UUID, sequenceNo int64, state *workflow.Instance) error
}

// ApplyFunc is the event-sourcing projection: a pure transformation of
// state given the next event. It must be total over workflow.EventType;
// internal/statemachine supplies the canonical implementation.
type ApplyFunc func(state *workflow.Instance, event workflow.Event) (*workflow.Instance, error)

// Sequence 1 is the first sequence number assigned to any workflow's log.
const firstSequenceNo int64 = 1
