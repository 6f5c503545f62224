// Package memstore is an in-memory statestore.Store for engine unit tests,
// grounded on the deep-copy-on-read/write in-memory state store shape used
// elsewhere in the retrieval pack for workflow status tracking.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/statestore"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Store is a mutex-guarded map of deep-copied instance documents.
type Store struct {
	mu        sync.RWMutex
	instances map[uuid.UUID]*workflow.Instance
}

// New constructs an empty Store.
func New() *Store {
	return &Store{instances: make(map[uuid.UUID]*workflow.Instance)}
}

func (s *Store) Get(_ context.Context, tc tenantctx.Context, id uuid.UUID) (*workflow.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	instance, ok := s.instances[id]
	if !ok || tc.CheckTenant(instance.TenantID) != nil {
		return nil, fmt.Errorf("statestore/memstore: get: %w", workflow.ErrNotFound)
	}
	return instance.Clone(), nil
}

func (s *Store) Insert(_ context.Context, tc tenantctx.Context, instance *workflow.Instance) error {
	if err := tc.CheckTenant(instance.TenantID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	instance.Version = 1
	s.instances[instance.ID] = instance.Clone()
	return nil
}

func (s *Store) UpdateState(_ context.Context, tc tenantctx.Context, state *workflow.Instance, expectedVersion int) error {
	if err := tc.CheckTenant(state.TenantID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instances[state.ID]
	if !ok {
		return fmt.Errorf("statestore/memstore: update_state: %w", workflow.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return statestore.ErrStaleWrite
	}
	state.Version = expectedVersion + 1
	s.instances[state.ID] = state.Clone()
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, tc tenantctx.Context, id uuid.UUID, status workflow.Status) error {
	instance, err := s.Get(ctx, tc, id)
	if err != nil {
		return err
	}
	instance.Status = status
	return s.UpdateState(ctx, tc, instance, instance.Version)
}

func (s *Store) Find(_ context.Context, tc tenantctx.Context, filter statestore.Filter) ([]*workflow.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*workflow.Instance
	for _, instance := range s.instances {
		if tc.CheckTenant(instance.TenantID) != nil {
			continue
		}
		if filter.Status != "" && instance.Status != filter.Status {
			continue
		}
		out = append(out, instance.Clone())
	}
	return out, nil
}

var _ statestore.Store = (*Store)(nil)
