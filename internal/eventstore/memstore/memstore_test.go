package memstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketgrid/onboardengine/internal/eventstore"
	"github.com/marketgrid/onboardengine/internal/eventstore/memstore"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

func countingApply(state *workflow.Instance, event workflow.Event) (*workflow.Instance, error) {
	clone := state.Clone()
	clone.LastSequenceNo = event.SequenceNo
	if clone.Metadata == nil {
		clone.Metadata = map[string]string{}
	}
	clone.Metadata["last_event_type"] = string(event.EventType)
	return clone, nil
}

func TestAppendMany_AssignsDenseSequence(t *testing.T) {
	store := memstore.New()
	wfID := uuid.New()
	tenantID := uuid.New()

	events := []workflow.Event{
		{WorkflowID: wfID, TenantID: tenantID, EventType: workflow.EventWorkflowCreated},
		{WorkflowID: wfID, TenantID: tenantID, EventType: workflow.EventStepStarted, StepID: "company_info"},
	}
	out, err := store.AppendMany(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].SequenceNo)
	assert.Equal(t, int64(2), out[1].SequenceNo)

	third, err := store.Append(context.Background(), workflow.Event{WorkflowID: wfID, TenantID: tenantID, EventType: workflow.EventStepCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(3), third.SequenceNo)
}

func TestAppendMany_RejectsMixedWorkflows(t *testing.T) {
	store := memstore.New()
	_, err := store.AppendMany(context.Background(), []workflow.Event{
		{WorkflowID: uuid.New()},
		{WorkflowID: uuid.New()},
	})
	assert.Error(t, err)
}

func TestReplay_IsPureFoldOverEvents(t *testing.T) {
	store := memstore.New()
	wfID := uuid.New()
	tenantID := uuid.New()

	_, err := store.AppendMany(context.Background(), []workflow.Event{
		{WorkflowID: wfID, TenantID: tenantID, EventType: workflow.EventWorkflowCreated},
		{WorkflowID: wfID, TenantID: tenantID, EventType: workflow.EventWorkflowStarted},
		{WorkflowID: wfID, TenantID: tenantID, EventType: workflow.EventStepCompleted, StepID: "company_info"},
	})
	require.NoError(t, err)

	initial := &workflow.Instance{ID: wfID, TenantID: tenantID}
	state, err := store.Replay(context.Background(), wfID, 0, initial, countingApply)
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.LastSequenceNo)
	assert.Equal(t, string(workflow.EventStepCompleted), state.Metadata["last_event_type"])

	// Replaying the same prefix twice yields an identical result.
	again, err := store.Replay(context.Background(), wfID, 0, initial, countingApply)
	require.NoError(t, err)
	assert.Equal(t, state.LastSequenceNo, again.LastSequenceNo)
	assert.Equal(t, state.Metadata, again.Metadata)
}

func TestReplay_UsesSnapshotAsStartingPoint(t *testing.T) {
	store := memstore.New()
	wfID := uuid.New()

	_, err := store.AppendMany(context.Background(), []workflow.Event{
		{WorkflowID: wfID, EventType: workflow.EventWorkflowCreated},
		{WorkflowID: wfID, EventType: workflow.EventWorkflowStarted},
	})
	require.NoError(t, err)

	snapState := &workflow.Instance{ID: wfID, LastSequenceNo: 2, Metadata: map[string]string{"from": "snapshot"}}
	require.NoError(t, store.SaveSnapshot(context.Background(), wfID, 2, snapState))

	_, err = store.Append(context.Background(), workflow.Event{WorkflowID: wfID, EventType: workflow.EventStepStarted, StepID: "x"})
	require.NoError(t, err)

	state, err := store.Replay(context.Background(), wfID, 0, &workflow.Instance{ID: wfID}, countingApply)
	require.NoError(t, err)
	assert.Equal(t, "snapshot", state.Metadata["from"])
	assert.Equal(t, int64(3), state.LastSequenceNo)
}

func TestGetEvents_FiltersBySequenceRange(t *testing.T) {
	store := memstore.New()
	wfID := uuid.New()
	_, err := store.AppendMany(context.Background(), []workflow.Event{
		{WorkflowID: wfID, EventType: workflow.EventWorkflowCreated},
		{WorkflowID: wfID, EventType: workflow.EventWorkflowStarted},
		{WorkflowID: wfID, EventType: workflow.EventWorkflowCompleted},
	})
	require.NoError(t, err)

	got, err := store.GetEvents(context.Background(), wfID, eventstore.GetEventsFilter{FromSeq: 2, ToSeq: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, workflow.EventWorkflowStarted, got[0].EventType)
}
