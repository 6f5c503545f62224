package recovery_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	bookmarkmem "github.com/marketgrid/onboardengine/internal/bookmark/memstore"
	"github.com/marketgrid/onboardengine/internal/config"
	eventmem "github.com/marketgrid/onboardengine/internal/eventstore/memstore"
	indexmem "github.com/marketgrid/onboardengine/internal/indexstore/memstore"
	"github.com/marketgrid/onboardengine/internal/recovery"
	statemem "github.com/marketgrid/onboardengine/internal/statestore/memstore"
	"github.com/marketgrid/onboardengine/internal/template"
	"github.com/marketgrid/onboardengine/internal/tenant"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

func testTemplate() *workflow.Template {
	return &workflow.Template{
		ID: uuid.New(), MarketRole: "generator", Version: 1, Name: "Generator Onboarding",
		Status: workflow.TemplateStatusActive,
		Steps: []workflow.StepDefinition{
			{ID: "company_info", Type: workflow.StepTypeForm, Required: true, Order: 1},
		},
		Transitions: map[string][]string{"company_info": {}},
		CreatedAt:   time.Now(),
	}
}

func adminTC(t *testing.T, tenantID uuid.UUID) tenantctx.Context {
	t.Helper()
	tc, err := tenantctx.New(tenant.Actor{ID: uuid.New(), Role: tenant.RoleTenantAdmin, TenantID: &tenantID}, tenantID)
	require.NoError(t, err)
	return tc
}

// TestLoop_Reproject_CatchesUpIndexBehindEventStore simulates a crashed or
// merely lagging projection: events reach the Event Store and State Store
// directly (bypassing the Index Store write, the way a crash mid-projection
// would) and the scan discovers and repairs the gap.
func TestLoop_Reproject_CatchesUpIndexBehindEventStore(t *testing.T) {
	ctx := context.Background()
	events := eventmem.New()
	index := indexmem.New()
	state := statemem.New()
	bookmarks := bookmarkmem.New()
	templates := template.New(zap.NewNop())
	require.NoError(t, templates.Register(testTemplate()))

	tenantID := uuid.New()
	workflowID := uuid.New()
	tc := adminTC(t, tenantID)

	created, err := events.Append(ctx, workflow.Event{
		WorkflowID: workflowID, TenantID: tenantID, EventType: workflow.EventWorkflowCreated,
		Payload:     json.RawMessage(`{"market_role":"generator","template_version":1}`),
		PerformedBy: "alice", OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	instance := &workflow.Instance{
		ID: workflowID, TenantID: tenantID, MarketRole: "generator", TemplateVersion: 1,
		Status: workflow.StatusDraft, StepStates: map[string]workflow.StepState{}, Version: 1,
		CreatedAt: created.OccurredAt, UpdatedAt: created.OccurredAt,
	}
	require.NoError(t, state.Insert(ctx, tc, instance))
	require.NoError(t, index.Insert(ctx, tc, workflow.IndexRow{
		ID: workflowID, TenantID: tenantID, MarketRole: "generator", Status: workflow.StatusInProgress,
		ProjectedSequenceNo: 0,
	}))

	started, err := events.Append(ctx, workflow.Event{
		WorkflowID: workflowID, TenantID: tenantID, EventType: workflow.EventStepStarted, StepID: "company_info",
		PerformedBy: "alice", OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = events.Append(ctx, workflow.Event{
		WorkflowID: workflowID, TenantID: tenantID, EventType: workflow.EventStepCompleted, StepID: "company_info",
		Payload: json.RawMessage(`{"legal_name":"Acme"}`), PerformedBy: "alice", OccurredAt: started.OccurredAt.Add(time.Second),
	})
	require.NoError(t, err)

	cfg := config.RecoveryConfig{Enabled: true, ScanInterval: 10 * time.Millisecond}
	cfg.SetDefaults()
	loop, err := recovery.New(events, index, state, bookmarks, templates, cfg, zap.NewNop())
	require.NoError(t, err)

	loop.Start()
	defer func() { require.NoError(t, loop.Stop()) }()

	require.Eventually(t, func() bool {
		row, err := index.Get(ctx, tc, workflowID)
		if err != nil {
			return false
		}
		return row.Status == workflow.StatusAwaitingValidation && row.ProjectedSequenceNo == 3
	}, 2*time.Second, 10*time.Millisecond)

	persisted, err := state.Get(ctx, tc, workflowID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusAwaitingValidation, persisted.Status)
}

// TestLoop_ExpiresStaleBookmark asserts the bookmark sweep loop finds and
// expires a bookmark past its deadline without any Engine involvement.
func TestLoop_ExpiresStaleBookmark(t *testing.T) {
	ctx := context.Background()
	events := eventmem.New()
	index := indexmem.New()
	state := statemem.New()
	bookmarks := bookmarkmem.New()
	templates := template.New(zap.NewNop())
	require.NoError(t, templates.Register(testTemplate()))

	tenantID := uuid.New()
	workflowID := uuid.New()
	tc := adminTC(t, tenantID)

	past := time.Now().Add(-time.Hour)
	bm := workflow.Bookmark{
		BookmarkID: uuid.New(), WorkflowID: workflowID, StepID: "company_info",
		Kind: workflow.BookmarkApproval, Active: true, ExpiresAt: &past, CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, bookmarks.Create(ctx, tc, bm))

	cfg := config.RecoveryConfig{Enabled: true, BookmarkSweepInterval: 10 * time.Millisecond}
	cfg.SetDefaults()
	cfg.BookmarkSweepInterval = 10 * time.Millisecond
	loop, err := recovery.New(events, index, state, bookmarks, templates, cfg, zap.NewNop())
	require.NoError(t, err)

	loop.Start()
	defer func() { require.NoError(t, loop.Stop()) }()

	require.Eventually(t, func() bool {
		got, err := bookmarks.Get(ctx, tc, bm.BookmarkID)
		return err == nil && !got.Active
	}, 2*time.Second, 10*time.Millisecond)
}

// TestLoop_Disabled_NeverStarts asserts a disabled loop does not spin up
// any goroutines, so Stop returns immediately without a real shutdown to
// perform.
func TestLoop_Disabled_NeverStarts(t *testing.T) {
	loop, err := recovery.New(eventmem.New(), indexmem.New(), statemem.New(), bookmarkmem.New(), template.New(zap.NewNop()), config.RecoveryConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	loop.Start()
	require.NoError(t, loop.Stop())
}
