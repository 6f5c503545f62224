// Package indexstore is the Index Store: a fast, queryable relational
// projection of workflow headers, tenant-scoped at every read.
package indexstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Filter narrows Query/Count beyond the implicit tenant scope.
type Filter struct {
	Status     workflow.Status
	MarketRole string
	TemplateID uuid.UUID
}

// Page bounds a Query result set.
type Page struct {
	Limit  int
	Offset int
}

// Store is the Index Store's contract. Every method takes a
// tenantctx.Context and must enforce CheckTenant before touching any row;
// market_ops callers see every tenant.
type Store interface {
	Insert(ctx context.Context, tc tenantctx.Context, row workflow.IndexRow) error

	// UpdateStatus is idempotent: calling it twice with the same
	// (status, currentStepID) pair leaves the row unchanged on the second
	// call, though ProjectedSequenceNo still advances.
	UpdateStatus(ctx context.Context, tc tenantctx.Context, id uuid.UUID, status workflow.Status, currentStepID string, projectedSequenceNo int64) error

	Get(ctx context.Context, tc tenantctx.Context, id uuid.UUID) (workflow.IndexRow, error)
	Query(ctx context.Context, tc tenantctx.Context, filter Filter, page Page) ([]workflow.IndexRow, error)
	Count(ctx context.Context, tc tenantctx.Context, filter Filter) (int, error)
	Delete(ctx context.Context, tc tenantctx.Context, id uuid.UUID) error
}
