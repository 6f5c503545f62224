// Package memstore is an in-memory indexstore.Store for engine unit tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/indexstore"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Store is a mutex-guarded map keyed by workflow id.
type Store struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]workflow.IndexRow
}

// New constructs an empty Store.
func New() *Store {
	return &Store{rows: make(map[uuid.UUID]workflow.IndexRow)}
}

func (s *Store) Insert(_ context.Context, tc tenantctx.Context, row workflow.IndexRow) error {
	if err := tc.CheckTenant(row.TenantID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.ID] = row
	return nil
}

func (s *Store) UpdateStatus(_ context.Context, tc tenantctx.Context, id uuid.UUID, status workflow.Status, currentStepID string, projectedSequenceNo int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("indexstore/memstore: update_status: %w", workflow.ErrNotFound)
	}
	if err := tc.CheckTenant(row.TenantID); err != nil {
		return err
	}
	row.Status = status
	row.CurrentStepID = currentStepID
	row.ProjectedSequenceNo = projectedSequenceNo
	s.rows[id] = row
	return nil
}

func (s *Store) Get(_ context.Context, tc tenantctx.Context, id uuid.UUID) (workflow.IndexRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok || tc.CheckTenant(row.TenantID) != nil {
		return workflow.IndexRow{}, fmt.Errorf("indexstore/memstore: get: %w", workflow.ErrNotFound)
	}
	return row, nil
}

func (s *Store) Query(_ context.Context, tc tenantctx.Context, filter indexstore.Filter, page indexstore.Page) ([]workflow.IndexRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []workflow.IndexRow
	for _, row := range s.rows {
		if tc.CheckTenant(row.TenantID) != nil {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		if filter.MarketRole != "" && row.MarketRole != filter.MarketRole {
			continue
		}
		if filter.TemplateID != uuid.Nil && row.TemplateID != filter.TemplateID {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if page.Limit <= 0 {
		page.Limit = 50
	}
	if page.Offset >= len(out) {
		return nil, nil
	}
	end := page.Offset + page.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[page.Offset:end], nil
}

func (s *Store) Count(ctx context.Context, tc tenantctx.Context, filter indexstore.Filter) (int, error) {
	rows, err := s.Query(ctx, tc, filter, indexstore.Page{Limit: 1 << 30})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) Delete(_ context.Context, tc tenantctx.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || tc.CheckTenant(row.TenantID) != nil {
		return fmt.Errorf("indexstore/memstore: delete: %w", workflow.ErrNotFound)
	}
	delete(s.rows, id)
	return nil
}

var _ indexstore.Store = (*Store)(nil)
