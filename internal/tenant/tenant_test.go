package tenant

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"onboarding", StatusOnboarding, true},
		{"active", StatusActive, true},
		{"inactive", StatusInactive, true},
		{"suspended", StatusSuspended, true},
		{"invalid", Status("invalid"), false},
		{"empty", Status(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("Status.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_IsActive(t *testing.T) {
	if !StatusActive.IsActive() {
		t.Error("active status should be active")
	}
	if StatusSuspended.IsActive() {
		t.Error("suspended status should not be active")
	}
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"onboarding -> active", StatusOnboarding, StatusActive, true},
		{"onboarding -> inactive", StatusOnboarding, StatusInactive, true},
		{"onboarding -> suspended (invalid)", StatusOnboarding, StatusSuspended, false},
		{"active -> inactive", StatusActive, StatusInactive, true},
		{"active -> suspended", StatusActive, StatusSuspended, true},
		{"suspended -> active", StatusSuspended, StatusActive, true},
		{"suspended -> inactive (invalid)", StatusSuspended, StatusInactive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("Status.CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTenant_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tenant  *Tenant
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid tenant",
			tenant:  &Tenant{ID: uuid.New(), Name: "valid-tenant-id", Status: StatusOnboarding},
			wantErr: false,
		},
		{
			name:    "missing name",
			tenant:  &Tenant{ID: uuid.New(), Status: StatusOnboarding},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "name too long",
			tenant:  &Tenant{ID: uuid.New(), Name: strings.Repeat("a", 256), Status: StatusOnboarding},
			wantErr: true,
			errMsg:  "name must be <= 255 characters",
		},
		{
			name:    "invalid name format",
			tenant:  &Tenant{ID: uuid.New(), Name: "Invalid_Tenant_ID", Status: StatusOnboarding},
			wantErr: true,
			errMsg:  "name must be lowercase alphanumeric with hyphens",
		},
		{
			name:    "missing status",
			tenant:  &Tenant{ID: uuid.New(), Name: "valid-tenant"},
			wantErr: true,
			errMsg:  "status is required",
		},
		{
			name:    "invalid status",
			tenant:  &Tenant{ID: uuid.New(), Name: "valid-tenant", Status: Status("invalid")},
			wantErr: true,
			errMsg:  "invalid status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tenant.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Tenant.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Tenant.Validate() error = %q, want substring %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestTenant_Clone(t *testing.T) {
	original := &Tenant{
		ID:     uuid.New(),
		Name:   "test-tenant",
		Status: StatusActive,
		Labels: map[string]string{"env": "prod"},
	}

	clone := original.Clone()

	if clone.ID != original.ID {
		t.Error("Clone ID mismatch")
	}
	if clone.Name != original.Name {
		t.Error("Clone Name mismatch")
	}

	clone.Labels["env"] = "dev"
	if original.Labels["env"] != "prod" {
		t.Error("Modifying clone Labels affected original")
	}
}

func TestActor_Validate(t *testing.T) {
	tenantID := uuid.New()

	tests := []struct {
		name    string
		actor   *Actor
		wantErr bool
		errMsg  string
	}{
		{
			name:    "market_ops without tenant is valid",
			actor:   &Actor{ID: uuid.New(), Role: RoleMarketOps},
			wantErr: false,
		},
		{
			name:    "market_ops with tenant binding is invalid",
			actor:   &Actor{ID: uuid.New(), Role: RoleMarketOps, TenantID: &tenantID},
			wantErr: true,
			errMsg:  "must not carry a tenant binding",
		},
		{
			name:    "tenant_admin with tenant binding is valid",
			actor:   &Actor{ID: uuid.New(), Role: RoleTenantAdmin, TenantID: &tenantID},
			wantErr: false,
		},
		{
			name:    "tenant_admin without tenant binding is invalid",
			actor:   &Actor{ID: uuid.New(), Role: RoleTenantAdmin},
			wantErr: true,
			errMsg:  "must be bound to exactly one tenant",
		},
		{
			name:    "unknown role is invalid",
			actor:   &Actor{ID: uuid.New(), Role: Role("bogus")},
			wantErr: true,
			errMsg:  "invalid role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.actor.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Actor.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Actor.Validate() error = %q, want substring %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestActor_IsCrossTenant(t *testing.T) {
	tenantID := uuid.New()
	if !(&Actor{Role: RoleMarketOps}).IsCrossTenant() {
		t.Error("market_ops actor should be cross-tenant")
	}
	if (&Actor{Role: RoleTenantViewer, TenantID: &tenantID}).IsCrossTenant() {
		t.Error("tenant_viewer actor should not be cross-tenant")
	}
}

func TestStateTransition_Validate(t *testing.T) {
	tenantID := uuid.New()
	fromStatus := StatusOnboarding

	tests := []struct {
		name       string
		transition *StateTransition
		wantErr    bool
		errMsg     string
	}{
		{
			name:       "valid transition",
			transition: &StateTransition{ID: uuid.New(), TenantID: tenantID, FromStatus: &fromStatus, ToStatus: StatusActive, Reason: "onboarding complete"},
			wantErr:    false,
		},
		{
			name:       "missing tenant_id",
			transition: &StateTransition{ID: uuid.New(), ToStatus: StatusActive, Reason: "test"},
			wantErr:    true,
			errMsg:     "tenant_id is required",
		},
		{
			name:       "invalid to_status",
			transition: &StateTransition{ID: uuid.New(), TenantID: tenantID, ToStatus: Status("invalid"), Reason: "test"},
			wantErr:    true,
			errMsg:     "invalid to_status",
		},
		{
			name:       "missing reason",
			transition: &StateTransition{ID: uuid.New(), TenantID: tenantID, ToStatus: StatusActive},
			wantErr:    true,
			errMsg:     "reason is required",
		},
		{
			name:       "invalid transition",
			transition: &StateTransition{ID: uuid.New(), TenantID: tenantID, FromStatus: &fromStatus, ToStatus: StatusSuspended, Reason: "test"},
			wantErr:    true,
			errMsg:     "invalid transition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.transition.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("StateTransition.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("StateTransition.Validate() error = %q, want substring %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestNewStateTransition(t *testing.T) {
	ten := &Tenant{ID: uuid.New(), Name: "test-tenant", Status: StatusOnboarding}

	transition := NewStateTransition(ten, StatusActive, "onboarding complete", "user@example.com")

	if transition.ID == uuid.Nil {
		t.Error("Transition ID should be generated")
	}
	if transition.TenantID != ten.ID {
		t.Error("TenantID mismatch")
	}
	if transition.ToStatus != StatusActive {
		t.Error("ToStatus mismatch")
	}
	if transition.FromStatus == nil || *transition.FromStatus != StatusOnboarding {
		t.Error("FromStatus should be set to current status")
	}
	if transition.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}
