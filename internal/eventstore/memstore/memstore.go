// Package memstore is an in-memory eventstore.Store used by engine unit
// tests, so that Engine and Saga Coordinator behavior can be exercised
// without a database.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/eventstore"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

type snapshot struct {
	sequenceNo int64
	state      *workflow.Instance
}

// Store is a mutex-guarded, deep-copy-on-read/write in-memory event log.
type Store struct {
	mu        sync.Mutex
	events    map[uuid.UUID][]workflow.Event
	snapshots map[uuid.UUID][]snapshot
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		events:    make(map[uuid.UUID][]workflow.Event),
		snapshots: make(map[uuid.UUID][]snapshot),
	}
}

func (s *Store) Append(ctx context.Context, event workflow.Event) (workflow.Event, error) {
	events, err := s.AppendMany(ctx, []workflow.Event{event})
	if err != nil {
		return workflow.Event{}, err
	}
	return events[0], nil
}

func (s *Store) AppendMany(_ context.Context, events []workflow.Event) ([]workflow.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	workflowID := events[0].WorkflowID
	for _, e := range events {
		if e.WorkflowID != workflowID {
			return nil, fmt.Errorf("eventstore/memstore: append_many: all events must share one workflow_id")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.events[workflowID]
	next := int64(len(existing))
	now := time.Now().UTC()
	out := make([]workflow.Event, len(events))
	for i, e := range events {
		next++
		e.SequenceNo = next
		if e.EventID == uuid.Nil {
			e.EventID = uuid.New()
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = now
		}
		if e.Payload == nil {
			e.Payload = json.RawMessage(`{}`)
		}
		existing = append(existing, e)
		out[i] = e
	}
	s.events[workflowID] = existing
	return out, nil
}

func (s *Store) GetEvents(_ context.Context, workflowID uuid.UUID, filter eventstore.GetEventsFilter) ([]workflow.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []workflow.Event
	for _, e := range s.events[workflowID] {
		if filter.FromSeq > 0 && e.SequenceNo < filter.FromSeq {
			continue
		}
		if filter.ToSeq > 0 && e.SequenceNo > filter.ToSeq {
			continue
		}
		if !filter.ToTime.IsZero() && e.OccurredAt.After(filter.ToTime) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) GetEventsByTenant(_ context.Context, tenantID uuid.UUID, from, to time.Time, limit int) ([]workflow.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []workflow.Event
	for _, events := range s.events {
		for _, e := range events {
			if e.TenantID != tenantID {
				continue
			}
			if e.OccurredAt.Before(from) || e.OccurredAt.After(to) {
				continue
			}
			out = append(out, e)
		}
	}
	// newest first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].OccurredAt.After(out[i].OccurredAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Replay(ctx context.Context, workflowID uuid.UUID, untilSeq int64, initial *workflow.Instance, apply eventstore.ApplyFunc) (*workflow.Instance, error) {
	s.mu.Lock()
	snaps := s.snapshots[workflowID]
	s.mu.Unlock()

	state := initial.Clone()
	var fromSeq int64 = 1
	for i := len(snaps) - 1; i >= 0; i-- {
		if untilSeq == 0 || snaps[i].sequenceNo <= untilSeq {
			state = snaps[i].state.Clone()
			fromSeq = snaps[i].sequenceNo + 1
			break
		}
	}

	events, err := s.GetEvents(ctx, workflowID, eventstore.GetEventsFilter{FromSeq: fromSeq, ToSeq: untilSeq})
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		state, err = apply(state, e)
		if err != nil {
			return nil, fmt.Errorf("eventstore/memstore: replay: apply seq %d: %w", e.SequenceNo, err)
		}
	}
	return state, nil
}

func (s *Store) SaveSnapshot(_ context.Context, workflowID uuid.UUID, sequenceNo int64, state *workflow.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[workflowID] = append(s.snapshots[workflowID], snapshot{sequenceNo: sequenceNo, state: state.Clone()})
	return nil
}

var _ eventstore.Store = (*Store)(nil)
