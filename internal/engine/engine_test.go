package engine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	bookmarkmem "github.com/marketgrid/onboardengine/internal/bookmark/memstore"
	"github.com/marketgrid/onboardengine/internal/engine"
	eventmem "github.com/marketgrid/onboardengine/internal/eventstore/memstore"
	indexmem "github.com/marketgrid/onboardengine/internal/indexstore/memstore"
	notifymock "github.com/marketgrid/onboardengine/internal/notify/mock"
	gatewaymock "github.com/marketgrid/onboardengine/internal/provisioning/mockgateway"
	"github.com/marketgrid/onboardengine/internal/saga"
	statemem "github.com/marketgrid/onboardengine/internal/statestore/memstore"
	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/stephandler/handlers"
	"github.com/marketgrid/onboardengine/internal/template"
	"github.com/marketgrid/onboardengine/internal/tenant"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// fakeTenants is a minimal tenant.Repository stand-in: engine tests only
// exercise GetTenantByID, so every other method is left unimplemented.
type fakeTenants struct {
	tenants map[uuid.UUID]*tenant.Tenant
}

func newFakeTenants() *fakeTenants { return &fakeTenants{tenants: map[uuid.UUID]*tenant.Tenant{}} }

func (f *fakeTenants) seedActive(id uuid.UUID) {
	f.tenants[id] = &tenant.Tenant{ID: id, Name: "acme", Status: tenant.StatusActive}
}

func (f *fakeTenants) seedInactive(id uuid.UUID) {
	f.tenants[id] = &tenant.Tenant{ID: id, Name: "acme", Status: tenant.StatusSuspended}
}

func (f *fakeTenants) GetTenantByID(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (f *fakeTenants) CreateTenant(context.Context, *tenant.Tenant) error { panic("not used") }
func (f *fakeTenants) GetTenantByName(context.Context, string) (*tenant.Tenant, error) {
	panic("not used")
}
func (f *fakeTenants) UpdateTenant(context.Context, *tenant.Tenant) error { panic("not used") }
func (f *fakeTenants) ListTenants(context.Context, tenant.ListFilters) ([]*tenant.Tenant, error) {
	panic("not used")
}
func (f *fakeTenants) DeleteTenant(context.Context, uuid.UUID) error { panic("not used") }

// onboardingTemplate builds a three-step generator-onboarding template:
// company_info (form) -> grid_compliance_review (approval) -> activation
// (api_call), mirroring an end-to-end onboarding scenario.
func onboardingTemplate() *workflow.Template {
	return &workflow.Template{
		ID:         uuid.New(),
		MarketRole: "generator",
		Version:    1,
		Name:       "Generator Onboarding",
		Status:     workflow.TemplateStatusActive,
		Steps: []workflow.StepDefinition{
			{ID: "company_info", Name: "Company Information", Type: workflow.StepTypeForm, Required: true, Order: 1,
				Configuration: json.RawMessage(`{"type":"object","required":["legal_name"],"properties":{"legal_name":{"type":"string","minLength":1}}}`)},
			{ID: "compliance_review", Name: "Compliance Review", Type: workflow.StepTypeApproval, Required: true, Order: 2},
			{ID: "activation", Name: "Grid Activation", Type: workflow.StepTypeAPICall, Required: true, Order: 3,
				Configuration: json.RawMessage(`{"method":"POST","url":"https://grid.example/activate"}`)},
		},
		Transitions: map[string][]string{
			"company_info":      {"compliance_review"},
			"compliance_review": {"activation"},
			"activation":        {},
		},
		CreatedAt: time.Now(),
	}
}

type testHarness struct {
	engine   *engine.Engine
	tenants  *fakeTenants
	gateway  *gatewaymock.Gateway
	bookmark *bookmarkmem.Store
}

func newHarness(t *testing.T) testHarness {
	t.Helper()
	logger := zap.NewNop()

	templates := template.New(logger)
	require.NoError(t, templates.Register(onboardingTemplate()))

	registry := stephandler.New(logger)
	require.NoError(t, registry.Register(handlers.NewForm()))
	require.NoError(t, registry.Register(handlers.NewApproval(24*time.Hour)))
	gateway := gatewaymock.New()
	require.NoError(t, registry.Register(handlers.NewAPICall(gateway, handlers.DefaultRetryPolicy(3), logger)))
	require.NoError(t, registry.Register(handlers.NewNotification(notifymock.New(), logger)))
	require.NoError(t, registry.Register(handlers.NewValidation()))
	require.NoError(t, registry.Register(handlers.NewDecision()))
	require.NoError(t, registry.Register(handlers.NewManual(24*time.Hour)))
	registry.Freeze()

	sagas := saga.New(registry, saga.DefaultRetryPolicy(3), logger)
	bookmarks := bookmarkmem.New()
	tenants := newFakeTenants()

	eng := engine.New(eventmem.New(), indexmem.New(), statemem.New(), templates, registry, sagas, bookmarks, tenants, logger)
	return testHarness{engine: eng, tenants: tenants, gateway: gateway, bookmark: bookmarks}
}

func tenantAdminCtx(t *testing.T, tenantID uuid.UUID) tenantctx.Context {
	t.Helper()
	tc, err := tenantctx.New(tenant.Actor{ID: uuid.New(), Role: tenant.RoleTenantAdmin, TenantID: &tenantID}, tenantID)
	require.NoError(t, err)
	return tc
}

func marketOpsCtx(t *testing.T, tenantID uuid.UUID) tenantctx.Context {
	t.Helper()
	tc, err := tenantctx.New(tenant.Actor{ID: uuid.New(), Role: tenant.RoleMarketOps}, tenantID)
	require.NoError(t, err)
	return tc
}

// TestEngine_HappyPath_FormApprovalAPICall drives a full onboarding
// happy path: create, submit a form, request approval (suspending on a
// bookmark), resume the approval, let the api_call step complete,
// validate, submit, and have market_ops approve to completed.
func TestEngine_HappyPath_FormApprovalAPICall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.tenants.seedActive(tenantID)
	tc := tenantAdminCtx(t, tenantID)

	workflowID, err := h.engine.Create(ctx, tc, "generator", 1, "alice")
	require.NoError(t, err)

	result, err := h.engine.ExecuteStep(ctx, tc, workflowID, "company_info", json.RawMessage(`{"legal_name":"Acme Power"}`), "alice")
	require.NoError(t, err)
	assert.Equal(t, "compliance_review", result.NextStepID)
	assert.Equal(t, workflow.StatusInProgress, result.Status)

	result, err = h.engine.ExecuteStep(ctx, tc, workflowID, "compliance_review", nil, "alice")
	require.NoError(t, err)
	assert.True(t, result.Paused)

	bm, err := h.bookmark.GetActiveForStep(ctx, tc, workflowID, "compliance_review")
	require.NoError(t, err)

	result, err = h.engine.ResumeBookmark(ctx, tc, workflowID, bm.BookmarkID, json.RawMessage(`{"outcome":"approved"}`), "reviewer1")
	require.NoError(t, err)
	assert.Equal(t, "activation", result.NextStepID)

	result, err = h.engine.ExecuteStep(ctx, tc, workflowID, "activation", nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusAwaitingValidation, result.Status)
	assert.Equal(t, "", result.NextStepID)

	report, err := h.engine.Validate(ctx, tc, workflowID)
	require.NoError(t, err)
	assert.True(t, report.Valid)

	require.NoError(t, h.engine.Submit(ctx, tc, workflowID, "alice"))

	ops := marketOpsCtx(t, tenantID)
	require.NoError(t, h.engine.Approve(ctx, ops, workflowID, "looks good", "ops1"))
}

// TestEngine_ResumeBookmark_IsNotRepeatable exercises the bookmark
// exactly-once-consume invariant through the engine's public surface.
func TestEngine_ResumeBookmark_IsNotRepeatable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.tenants.seedActive(tenantID)
	tc := tenantAdminCtx(t, tenantID)

	workflowID, err := h.engine.Create(ctx, tc, "generator", 1, "alice")
	require.NoError(t, err)
	_, err = h.engine.ExecuteStep(ctx, tc, workflowID, "company_info", json.RawMessage(`{"legal_name":"Acme Power"}`), "alice")
	require.NoError(t, err)
	_, err = h.engine.ExecuteStep(ctx, tc, workflowID, "compliance_review", nil, "alice")
	require.NoError(t, err)

	bm, err := h.bookmark.GetActiveForStep(ctx, tc, workflowID, "compliance_review")
	require.NoError(t, err)

	_, err = h.engine.ResumeBookmark(ctx, tc, workflowID, bm.BookmarkID, json.RawMessage(`{"outcome":"approved"}`), "reviewer1")
	require.NoError(t, err)

	_, err = h.engine.ResumeBookmark(ctx, tc, workflowID, bm.BookmarkID, json.RawMessage(`{"outcome":"approved"}`), "reviewer1")
	assert.ErrorIs(t, err, workflow.ErrBookmarkConsumed)
}

// TestEngine_Create_RejectsInactiveTenant covers the create precondition
// that the target tenant must be active.
func TestEngine_Create_RejectsInactiveTenant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.tenants.seedInactive(tenantID)
	tc := tenantAdminCtx(t, tenantID)

	_, err := h.engine.Create(ctx, tc, "generator", 1, "alice")
	assert.ErrorIs(t, err, workflow.ErrTenantNotActive)
}

// TestEngine_ExecuteStep_FormValidationFailureBlocksProgress exercises the
// form handler's JSON Schema validation rejecting submitted data before
// any event is appended.
func TestEngine_ExecuteStep_FormValidationFailureBlocksProgress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.tenants.seedActive(tenantID)
	tc := tenantAdminCtx(t, tenantID)

	workflowID, err := h.engine.Create(ctx, tc, "generator", 1, "alice")
	require.NoError(t, err)

	_, err = h.engine.ExecuteStep(ctx, tc, workflowID, "company_info", json.RawMessage(`{}`), "alice")
	require.Error(t, err)
	var opErr *engine.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, workflow.KindValidation, opErr.Kind)
	assert.NotEmpty(t, opErr.FieldErrors)
}

// TestEngine_Rollback_ReturnsToTargetStep drives a rollback past a
// completed approval step and asserts the workflow lands back in_progress
// at the rollback target, from which the approval step runs again.
func TestEngine_Rollback_ReturnsToTargetStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.tenants.seedActive(tenantID)
	tc := tenantAdminCtx(t, tenantID)

	workflowID, err := h.engine.Create(ctx, tc, "generator", 1, "alice")
	require.NoError(t, err)
	_, err = h.engine.ExecuteStep(ctx, tc, workflowID, "company_info", json.RawMessage(`{"legal_name":"Acme Power"}`), "alice")
	require.NoError(t, err)
	_, err = h.engine.ExecuteStep(ctx, tc, workflowID, "compliance_review", nil, "alice")
	require.NoError(t, err)
	bm, err := h.bookmark.GetActiveForStep(ctx, tc, workflowID, "compliance_review")
	require.NoError(t, err)
	_, err = h.engine.ResumeBookmark(ctx, tc, workflowID, bm.BookmarkID, json.RawMessage(`{"outcome":"approved"}`), "reviewer1")
	require.NoError(t, err)

	require.NoError(t, h.engine.Rollback(ctx, tc, workflowID, "company_info", "alice"))

	result, err := h.engine.ExecuteStep(ctx, tc, workflowID, "compliance_review", nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusInProgress, result.Status)
	assert.True(t, result.Paused)
}

// TestEngine_Cancel_SecondCancelIsInvalidTransition cancels a workflow
// and asserts that cancelling it again is rejected as an invalid
// transition out of the terminal cancelled status.
func TestEngine_Cancel_SecondCancelIsInvalidTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.tenants.seedActive(tenantID)
	tc := tenantAdminCtx(t, tenantID)

	workflowID, err := h.engine.Create(ctx, tc, "generator", 1, "alice")
	require.NoError(t, err)
	_, err = h.engine.ExecuteStep(ctx, tc, workflowID, "company_info", json.RawMessage(`{"legal_name":"Acme Power"}`), "alice")
	require.NoError(t, err)

	require.NoError(t, h.engine.Cancel(ctx, tc, workflowID, "tenant withdrew", "alice"))

	err = h.engine.Cancel(ctx, tc, workflowID, "again", "alice")
	require.Error(t, err)
	var opErr *engine.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, workflow.KindInvalidTransition, opErr.Kind)
}

// TestEngine_Create_PermissionDenied asserts role-gated operations
// reject an actor lacking the grant before touching any collaborator.
func TestEngine_Create_PermissionDenied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.tenants.seedActive(tenantID)

	viewer, err := tenantctx.New(tenant.Actor{ID: uuid.New(), Role: tenant.RoleTenantViewer, TenantID: &tenantID}, tenantID)
	require.NoError(t, err)

	_, err = h.engine.Create(ctx, viewer, "generator", 1, "alice")
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
}
