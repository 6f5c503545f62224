// Package tenantctx carries the requesting tenant and actor through every
// operation on the workflow engine's stores, so that isolation is enforced
// where the data lives rather than trusted at the call site.
package tenantctx

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/tenant"
)

// Context is the identity bound to a single engine operation: which actor
// is performing it, and which tenant the operation is scoped to.
//
// For a cross-tenant RoleMarketOps actor, TenantID names the tenant being
// acted on and is independent of the actor's own (absent) binding. For
// every other role, TenantID must equal the actor's bound tenant.
type Context struct {
	Actor    tenant.Actor
	TenantID uuid.UUID
}

type ctxKey struct{}

// ErrTenantMismatch is returned when a non-cross-tenant actor's binding does
// not match the tenant the operation targets.
var ErrTenantMismatch = fmt.Errorf("tenantctx: actor is not bound to the requested tenant")

// New builds a tenant context for actor acting against tenantID, validating
// the tenant-binding invariant from tenant.Actor.Validate up front.
func New(actor tenant.Actor, tenantID uuid.UUID) (Context, error) {
	if err := actor.Validate(); err != nil {
		return Context{}, fmt.Errorf("tenantctx: %w", err)
	}
	if !actor.IsCrossTenant() {
		if actor.TenantID == nil || *actor.TenantID != tenantID {
			return Context{}, ErrTenantMismatch
		}
	}
	return Context{Actor: actor, TenantID: tenantID}, nil
}

// WithContext returns a copy of parent carrying tc.
func WithContext(parent context.Context, tc Context) context.Context {
	return context.WithValue(parent, ctxKey{}, tc)
}

// FromContext extracts the tenant context previously attached with
// WithContext. The second return value is false if none is present.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// Require is FromContext but returns an error instead of a boolean, for call
// sites that cannot proceed without an identity.
func Require(ctx context.Context) (Context, error) {
	tc, ok := FromContext(ctx)
	if !ok {
		return Context{}, fmt.Errorf("tenantctx: no tenant context bound to this request")
	}
	return tc, nil
}

// AllowsTenant reports whether tc may operate against tenantID: true for a
// cross-tenant actor regardless of the target, or for any actor whose
// TenantID equals the target.
func (tc Context) AllowsTenant(tenantID uuid.UUID) bool {
	if tc.Actor.IsCrossTenant() {
		return true
	}
	return tc.TenantID == tenantID
}

// CheckTenant returns ErrTenantMismatch if tc may not operate against
// tenantID. Store implementations call this before touching any row scoped
// to tenantID.
func (tc Context) CheckTenant(tenantID uuid.UUID) error {
	if !tc.AllowsTenant(tenantID) {
		return ErrTenantMismatch
	}
	return nil
}

// operations mirrors the grants seeded into the permissions table by
// migration 000006 (which prefixes each operation with "workflow:").
// HasOperation reads only this map; no code in the repository queries the
// permissions table. approve/reject are reserved for market_ops per the
// approval workflow's design.
var operations = map[tenant.Role]map[string]bool{
	tenant.RoleMarketOps: {
		"create": true, "execute_step": true, "pause": true, "resume": true,
		"rollback": true, "validate": true, "submit": true, "approve": true,
		"reject": true, "cancel": true, "view": true,
	},
	tenant.RoleTenantAdmin: {
		"create": true, "execute_step": true, "pause": true, "resume": true,
		"rollback": true, "validate": true, "submit": true, "cancel": true,
		"view": true,
	},
	tenant.RoleTenantOperator: {
		"execute_step": true, "validate": true, "view": true,
	},
	tenant.RoleTenantViewer: {
		"view": true,
	},
	tenant.RoleComplianceReviewer: {
		"view": true, "validate": true,
	},
}

// HasOperation reports whether tc's actor role grants op.
func (tc Context) HasOperation(op string) bool {
	grants, ok := operations[tc.Actor.Role]
	if !ok {
		return false
	}
	return grants[op]
}
