// Package bookmark is the Bookmark Manager: it owns suspension points
// created by asynchronous step handlers (approval, manual) and
// enforces consume-once semantics and expiry, backed by the bookmarks
// table's partial unique index guaranteeing exactly one active bookmark
// per paused step.
package bookmark

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// ErrNotFound is returned when no bookmark matches the given id.
var ErrNotFound = errors.New("bookmark: not found")

// Store persists bookmarks. Every method except ListExpired and Expire is
// tenant-scoped through tenantctx.Context, same as indexstore and
// statestore.
type Store interface {
	// Create persists a new active bookmark. It fails with a unique
	// constraint violation (surfaced as workflow.ErrConflictingWrite) if
	// the step already has an active bookmark.
	Create(ctx context.Context, tc tenantctx.Context, b workflow.Bookmark) error

	// Get returns the bookmark by id.
	Get(ctx context.Context, tc tenantctx.Context, bookmarkID uuid.UUID) (workflow.Bookmark, error)

	// GetActiveForStep returns the active bookmark for a workflow's step,
	// if any.
	GetActiveForStep(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, stepID string) (workflow.Bookmark, error)

	// Consume marks a bookmark inactive and records consumedAt. It fails
	// with workflow.ErrBookmarkConsumed if the bookmark is already
	// inactive, and workflow.ErrBookmarkExpired if its expiry has passed.
	Consume(ctx context.Context, tc tenantctx.Context, bookmarkID uuid.UUID) (workflow.Bookmark, error)

	// ListExpired returns every active bookmark whose expiry has passed,
	// across all tenants — used by the recovery sweep, so like Expire it
	// does not take a tenantctx.Context; callers must be
	// market-ops-equivalent infrastructure code, not a tenant-scoped
	// request path.
	ListExpired(ctx context.Context) ([]workflow.Bookmark, error)

	// Expire marks a bookmark inactive without a consumedAt, used by the
	// expiry sweep once a bookmark's deadline has passed.
	Expire(ctx context.Context, bookmarkID uuid.UUID) error
}
