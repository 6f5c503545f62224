// Package tenant defines the Tenant and Actor identity model that the
// tenant context layer enforces isolation around.
package tenant

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// namePattern validates that a tenant name is lowercase alphanumeric with hyphens.
var namePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Status represents a tenant's position in its lifecycle.
type Status string

const (
	// StatusOnboarding: tenant record exists but has not yet completed
	// onboarding workflows. Next states: StatusActive, StatusInactive.
	StatusOnboarding Status = "onboarding"

	// StatusActive: tenant is fully operational; its actors may create and
	// execute workflow instances. Next states: StatusInactive, StatusSuspended.
	StatusActive Status = "active"

	// StatusInactive: tenant is dormant; no new workflow instances may be
	// created, but existing ones may still be read. Next states: StatusActive.
	StatusInactive Status = "inactive"

	// StatusSuspended: tenant access has been administratively revoked.
	// Next states: StatusActive.
	StatusSuspended Status = "suspended"
)

// ValidTransitions defines allowed status transitions.
var ValidTransitions = map[Status][]Status{
	StatusOnboarding: {StatusActive, StatusInactive},
	StatusActive:     {StatusInactive, StatusSuspended},
	StatusInactive:   {StatusActive},
	StatusSuspended:  {StatusActive},
}

// IsValid checks if a status is a known valid status.
func (s Status) IsValid() bool {
	switch s {
	case StatusOnboarding, StatusActive, StatusInactive, StatusSuspended:
		return true
	default:
		return false
	}
}

// IsActive returns true if the tenant may create new workflow instances.
func (s Status) IsActive() bool {
	return s == StatusActive
}

// CanTransition checks if a transition to the given status is valid.
func (s Status) CanTransition(to Status) bool {
	allowed, exists := ValidTransitions[s]
	if !exists {
		return false
	}
	for _, valid := range allowed {
		if valid == to {
			return true
		}
	}
	return false
}

// Tenant is an opaque owner of actors and workflow instances. Its
// identifier is immutable; only its status and metadata may change.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version is incremented on every update for optimistic locking.
	Version int `json:"version"`

	Labels map[string]string `json:"labels,omitempty"`
}

// Validate checks if a tenant is well-formed.
func (t *Tenant) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Name) > 255 {
		return fmt.Errorf("name must be <= 255 characters")
	}
	if !namePattern.MatchString(t.Name) {
		return fmt.Errorf("name must be lowercase alphanumeric with hyphens")
	}
	if t.Status == "" {
		return fmt.Errorf("status is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	return nil
}

// Clone returns a deep copy of the tenant.
func (t *Tenant) Clone() *Tenant {
	clone := *t
	if t.Labels != nil {
		clone.Labels = make(map[string]string, len(t.Labels))
		for k, v := range t.Labels {
			clone.Labels[k] = v
		}
	}
	return &clone
}

// Role is an actor's permission class.
type Role string

const (
	// RoleMarketOps is cross-tenant: it may act on behalf of any tenant and
	// must not carry a tenant binding.
	RoleMarketOps Role = "market_ops"

	// RoleTenantAdmin may manage actors and workflow instances within its
	// bound tenant.
	RoleTenantAdmin Role = "tenant_admin"

	// RoleTenantOperator may execute steps of, validate and view workflow
	// instances within its bound tenant; it may not create them.
	RoleTenantOperator Role = "tenant_operator"

	// RoleTenantViewer may read workflow instances within its bound tenant.
	RoleTenantViewer Role = "tenant_viewer"

	// RoleComplianceReviewer may view and validate workflow instances
	// within its bound tenant; approve/reject are granted only to
	// RoleMarketOps.
	RoleComplianceReviewer Role = "compliance_reviewer"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleMarketOps, RoleTenantAdmin, RoleTenantOperator, RoleTenantViewer, RoleComplianceReviewer:
		return true
	default:
		return false
	}
}

// Actor is a user identity plus role. market_ops actors are cross-tenant and
// must carry no tenant binding; every other role must be bound to exactly
// one tenant.
type Actor struct {
	ID       uuid.UUID  `json:"id"`
	Role     Role       `json:"role"`
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
}

// Validate enforces the market_ops/tenant-binding invariant.
func (a *Actor) Validate() error {
	if !a.Role.IsValid() {
		return fmt.Errorf("invalid role: %s", a.Role)
	}
	if a.Role == RoleMarketOps {
		if a.TenantID != nil {
			return fmt.Errorf("market_ops actor must not carry a tenant binding")
		}
		return nil
	}
	if a.TenantID == nil {
		return fmt.Errorf("%s actor must be bound to exactly one tenant", a.Role)
	}
	return nil
}

// IsCrossTenant reports whether the actor may act across tenant boundaries.
func (a *Actor) IsCrossTenant() bool {
	return a.Role == RoleMarketOps
}

// StateTransition is an immutable audit log entry for a tenant status change.
type StateTransition struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	FromStatus  *Status   `json:"from_status,omitempty"`
	ToStatus    Status    `json:"to_status"`
	Reason      string    `json:"reason"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewStateTransition builds a state transition record from a tenant's
// current status to toStatus.
func NewStateTransition(t *Tenant, toStatus Status, reason, triggeredBy string) *StateTransition {
	transition := &StateTransition{
		ID:          uuid.New(),
		TenantID:    t.ID,
		ToStatus:    toStatus,
		Reason:      reason,
		TriggeredBy: triggeredBy,
		CreatedAt:   time.Now(),
	}
	if t.Status != "" {
		from := t.Status
		transition.FromStatus = &from
	}
	return transition
}

// Validate checks if a state transition is well-formed and allowed.
func (st *StateTransition) Validate() error {
	if st.TenantID == uuid.Nil {
		return fmt.Errorf("tenant_id is required")
	}
	if !st.ToStatus.IsValid() {
		return fmt.Errorf("invalid to_status: %s", st.ToStatus)
	}
	if st.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	if st.FromStatus != nil && !st.FromStatus.CanTransition(st.ToStatus) {
		return fmt.Errorf("invalid transition from %s to %s", *st.FromStatus, st.ToStatus)
	}
	return nil
}
