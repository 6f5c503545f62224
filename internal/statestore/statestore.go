// Package statestore is the State Store: the fast-read, rebuildable
// per-workflow current-state document.
package statestore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// ErrStaleWrite is returned by UpdateState when the caller's expectedVersion
// does not match the stored version; the caller must reload and retry,
// re-validating the transition against fresh state.
var ErrStaleWrite = errors.New("statestore: stale write, reload and retry")

// Filter narrows Find.
type Filter struct {
	Status workflow.Status
}

// Store is the State Store's contract.
type Store interface {
	Get(ctx context.Context, tc tenantctx.Context, id uuid.UUID) (*workflow.Instance, error)
	Insert(ctx context.Context, tc tenantctx.Context, instance *workflow.Instance) error

	// UpdateState persists state with optimistic concurrency: it fails with
	// ErrStaleWrite if the stored Version does not equal expectedVersion.
	UpdateState(ctx context.Context, tc tenantctx.Context, state *workflow.Instance, expectedVersion int) error

	UpdateStatus(ctx context.Context, tc tenantctx.Context, id uuid.UUID, status workflow.Status) error
	Find(ctx context.Context, tc tenantctx.Context, filter Filter) ([]*workflow.Instance, error)
}
