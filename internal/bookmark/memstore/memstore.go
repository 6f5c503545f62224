// Package memstore is an in-memory bookmark.Store used in engine unit
// tests without a database, following the same deep-copy-on-read/write
// discipline as internal/statestore/memstore.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/bookmark"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

type row struct {
	bookmark workflow.Bookmark
	tenantID uuid.UUID
}

// Store is an in-memory bookmark.Store.
type Store struct {
	mu   sync.Mutex
	rows map[uuid.UUID]row
}

// New constructs an empty Store.
func New() *Store {
	return &Store{rows: make(map[uuid.UUID]row)}
}

func (s *Store) Create(_ context.Context, tc tenantctx.Context, b workflow.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.bookmark.WorkflowID == b.WorkflowID && r.bookmark.StepID == b.StepID && r.bookmark.Active {
			return workflow.ErrConflictingWrite
		}
	}
	s.rows[b.BookmarkID] = row{bookmark: b.Clone(), tenantID: tc.TenantID}
	return nil
}

func (s *Store) Get(_ context.Context, tc tenantctx.Context, bookmarkID uuid.UUID) (workflow.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[bookmarkID]
	if !ok {
		return workflow.Bookmark{}, bookmark.ErrNotFound
	}
	if err := tc.CheckTenant(r.tenantID); err != nil {
		return workflow.Bookmark{}, bookmark.ErrNotFound
	}
	return r.bookmark.Clone(), nil
}

func (s *Store) GetActiveForStep(_ context.Context, tc tenantctx.Context, workflowID uuid.UUID, stepID string) (workflow.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.bookmark.WorkflowID == workflowID && r.bookmark.StepID == stepID && r.bookmark.Active {
			if err := tc.CheckTenant(r.tenantID); err != nil {
				return workflow.Bookmark{}, bookmark.ErrNotFound
			}
			return r.bookmark.Clone(), nil
		}
	}
	return workflow.Bookmark{}, bookmark.ErrNotFound
}

func (s *Store) Consume(_ context.Context, tc tenantctx.Context, bookmarkID uuid.UUID) (workflow.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[bookmarkID]
	if !ok {
		return workflow.Bookmark{}, bookmark.ErrNotFound
	}
	if err := tc.CheckTenant(r.tenantID); err != nil {
		return workflow.Bookmark{}, bookmark.ErrNotFound
	}
	if !r.bookmark.Active {
		if r.bookmark.ConsumedAt != nil {
			return workflow.Bookmark{}, workflow.ErrBookmarkConsumed
		}
		return workflow.Bookmark{}, workflow.ErrBookmarkExpired
	}
	if r.bookmark.ExpiresAt != nil && time.Now().After(*r.bookmark.ExpiresAt) {
		r.bookmark.Active = false
		s.rows[bookmarkID] = r
		return workflow.Bookmark{}, workflow.ErrBookmarkExpired
	}
	now := time.Now()
	r.bookmark.Active = false
	r.bookmark.ConsumedAt = &now
	s.rows[bookmarkID] = r
	return r.bookmark.Clone(), nil
}

func (s *Store) ListExpired(_ context.Context) ([]workflow.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []workflow.Bookmark
	for _, r := range s.rows {
		if r.bookmark.Active && r.bookmark.ExpiresAt != nil && now.After(*r.bookmark.ExpiresAt) {
			out = append(out, r.bookmark.Clone())
		}
	}
	return out, nil
}

func (s *Store) Expire(_ context.Context, bookmarkID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[bookmarkID]
	if !ok {
		return bookmark.ErrNotFound
	}
	r.bookmark.Active = false
	s.rows[bookmarkID] = r
	return nil
}

var _ bookmark.Store = (*Store)(nil)
