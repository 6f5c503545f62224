// Package statemachine validates step transitions against a workflow
// template and applies events to instance state as a pure, total
// projection. It is the canonical eventstore.ApplyFunc
// implementation used by replay, crash recovery, and rollback.
//
// This is distinct from internal/tenant's status transition map, which
// only governs a Tenant's own onboarding/active/inactive/suspended
// lifecycle.
package statemachine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Machine validates forward transitions for one instance against its
// template. It holds no state of its own beyond the two values passed to
// New; every method is a pure function of (state, template).
type Machine struct {
	state    *workflow.Instance
	template *workflow.Template
}

// New binds an instance to the template that governs it.
func New(state *workflow.Instance, tmpl *workflow.Template) *Machine {
	return &Machine{state: state, template: tmpl}
}

// CurrentStep returns the instance's current step id, or "" for a draft
// instance that has not executed its first step.
func (m *Machine) CurrentStep() string {
	return m.state.CurrentStepID
}

// CanTransition implements the status transition algorithm as a pure
// boolean predicate, for callers (handlers, the API layer) that want to
// check before attempting a mutating Transition.
func (m *Machine) CanTransition(toStep string) bool {
	return m.checkTransition(toStep) == nil
}

// checkTransition runs the ordered rejection checks and
// returns the first violated one, or nil if toStep is reachable.
func (m *Machine) checkTransition(toStep string) error {
	if m.state.Status.IsTerminal() {
		return fmt.Errorf("%w: workflow is in terminal status %s", workflow.ErrInvalidTransition, m.state.Status)
	}
	if _, ok := m.template.Step(toStep); !ok {
		return fmt.Errorf("%w: %s is not defined in template %s v%d", workflow.ErrInvalidTransition, toStep, m.template.MarketRole, m.template.Version)
	}
	// A draft instance with no current step may enter at the template's
	// first step; every other instance must follow the transition map.
	if m.state.CurrentStepID == "" {
		first, ok := m.template.FirstStep()
		if !ok || first.ID != toStep {
			return fmt.Errorf("%w: %s is not the template's entry step", workflow.ErrInvalidTransition, toStep)
		}
		return nil
	}
	if !m.template.CanTransition(m.state.CurrentStepID, toStep) {
		return fmt.Errorf("%w: %s is not reachable from %s", workflow.ErrInvalidTransition, toStep, m.state.CurrentStepID)
	}
	return nil
}

// Transition validates toStep is reachable and returns a copy of state with
// the target step marked in_progress. It does not mutate current_step_id:
// that only happens once the corresponding event has
// been durably appended, which the Engine does by calling Apply on the
// resulting event.
func (m *Machine) Transition(toStep string, data json.RawMessage) (*workflow.Instance, error) {
	if err := m.checkTransition(toStep); err != nil {
		return nil, err
	}
	next := m.state.Clone()
	now := time.Now().UTC()
	step := next.StepStates[toStep]
	step.StepID = toStep
	step.Status = workflow.StepStatusInProgress
	step.Data = data
	step.StartedAt = &now
	next.StepStates[toStep] = step
	return next, nil
}

// DeriveStatus layers the awaiting_validation status on top of Apply's pure
// event projection. No discrete event marks entry into awaiting_validation:
// per the workflow-status diagram it is simply what in_progress means once
// every required step has completed. Apply cannot compute this itself since
// ApplyFunc is not handed the template, so the Engine and crash recovery
// both call DeriveStatus after folding, never persisting the derivation as
// if it were replayed ground truth.
func DeriveStatus(instance *workflow.Instance, tmpl *workflow.Template) *workflow.Instance {
	if instance.Status != workflow.StatusInProgress {
		return instance
	}
	for _, stepID := range tmpl.RequiredSteps() {
		state, ok := instance.StepStates[stepID]
		if !ok || state.Status != workflow.StepStatusCompleted {
			return instance
		}
	}
	next := instance.Clone()
	next.Status = workflow.StatusAwaitingValidation
	return next
}

// Apply folds a single event into state, implementing eventstore.ApplyFunc.
// It is total over workflow.EventType: an unrecognized type is rejected,
// never silently ignored.
func Apply(state *workflow.Instance, event workflow.Event) (*workflow.Instance, error) {
	next := state.Clone()
	next.LastSequenceNo = event.SequenceNo
	next.UpdatedAt = event.OccurredAt
	if next.ID == uuid.Nil {
		next.ID = event.WorkflowID
	}
	if next.TenantID == uuid.Nil {
		next.TenantID = event.TenantID
	}

	switch event.EventType {
	case workflow.EventWorkflowCreated:
		var payload struct {
			TemplateID      string `json:"template_id"`
			TemplateVersion int    `json:"template_version"`
			MarketRole      string `json:"market_role"`
			CreatedBy       string `json:"created_by"`
		}
		if err := unmarshalPayload(event, &payload); err != nil {
			return nil, err
		}
		next.Status = workflow.StatusDraft
		next.MarketRole = payload.MarketRole
		next.CreatedBy = payload.CreatedBy
		next.CreatedAt = event.OccurredAt
		next.TemplateVersion = payload.TemplateVersion
		if id, err := uuid.Parse(payload.TemplateID); err == nil {
			next.TemplateID = id
		}
		if next.StepStates == nil {
			next.StepStates = map[string]workflow.StepState{}
		}

	case workflow.EventWorkflowStarted:
		next.Status = workflow.StatusInProgress

	case workflow.EventWorkflowPaused:
		next.Status = workflow.StatusPaused

	case workflow.EventWorkflowResumed:
		next.Status = workflow.StatusInProgress

	case workflow.EventWorkflowSubmitted:
		next.Status = workflow.StatusSubmitted

	case workflow.EventWorkflowCompleted:
		next.Status = workflow.StatusCompleted

	case workflow.EventWorkflowFailed:
		next.Status = workflow.StatusFailed

	case workflow.EventWorkflowCancelled:
		next.Status = workflow.StatusCancelled

	case workflow.EventWorkflowRolledBack:
		next.Status = workflow.StatusInProgress
		var payload struct {
			ToStep string `json:"to_step"`
		}
		if err := unmarshalPayload(event, &payload); err != nil {
			return nil, err
		}
		next.CurrentStepID = payload.ToStep
		if payload.ToStep != "" {
			step := next.StepStates[payload.ToStep]
			step.Status = workflow.StepStatusInProgress
			step.CompletedAt = nil
			next.StepStates[payload.ToStep] = step
		}

	case workflow.EventStepStarted:
		step := next.StepStates[event.StepID]
		step.StepID = event.StepID
		step.Status = workflow.StepStatusInProgress
		started := event.OccurredAt
		step.StartedAt = &started
		step.Error = ""
		next.StepStates[event.StepID] = step
		if next.Status == workflow.StatusDraft {
			next.Status = workflow.StatusInProgress
		}

	case workflow.EventStepCompleted:
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusCompleted
		completed := event.OccurredAt
		step.CompletedAt = &completed
		step.Data = event.Payload
		next.StepStates[event.StepID] = step
		next.CurrentStepID = event.StepID

	case workflow.EventStepFailed:
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusFailed
		var payload struct {
			Error string `json:"error"`
		}
		if err := unmarshalPayload(event, &payload); err != nil {
			return nil, err
		}
		step.Error = payload.Error
		next.StepStates[event.StepID] = step

	case workflow.EventStepValidated:
		step := next.StepStates[event.StepID]
		step.ValidationErrors = nil
		next.StepStates[event.StepID] = step

	case workflow.EventStepPaused:
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusPaused
		paused := event.OccurredAt
		step.PausedAt = &paused
		next.StepStates[event.StepID] = step

	case workflow.EventStepResumed:
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusInProgress
		step.PausedAt = nil
		next.StepStates[event.StepID] = step

	case workflow.EventStepSkipped:
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusSkipped
		next.StepStates[event.StepID] = step

	case workflow.EventStepCompensated:
		step := next.StepStates[event.StepID]
		var payload struct {
			Failed bool   `json:"failed"`
			Error  string `json:"error,omitempty"`
		}
		if err := unmarshalPayload(event, &payload); err != nil {
			return nil, err
		}
		if payload.Failed {
			step.Status = workflow.StepStatusFailed
			step.Error = payload.Error
		} else {
			step.Status = workflow.StepStatusPending
			step.Data = nil
			step.CompletedAt = nil
		}
		next.StepStates[event.StepID] = step

	case workflow.EventApprovalRequested:
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusPaused
		next.StepStates[event.StepID] = step

	case workflow.EventApprovalGranted:
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusCompleted
		completed := event.OccurredAt
		step.CompletedAt = &completed
		next.StepStates[event.StepID] = step
		next.CurrentStepID = event.StepID

	case workflow.EventApprovalRejected:
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusFailed
		next.StepStates[event.StepID] = step

	case workflow.EventDataUpdated:
		step := next.StepStates[event.StepID]
		step.Data = event.Payload
		next.StepStates[event.StepID] = step

	case workflow.EventValidationFailed:
		var payload struct {
			Errors []string `json:"errors"`
		}
		if err := unmarshalPayload(event, &payload); err != nil {
			return nil, err
		}
		step := next.StepStates[event.StepID]
		step.ValidationErrors = payload.Errors
		next.StepStates[event.StepID] = step

	case workflow.EventValidationPassed:
		step := next.StepStates[event.StepID]
		step.ValidationErrors = nil
		step.Status = workflow.StepStatusCompleted
		completed := event.OccurredAt
		step.CompletedAt = &completed
		step.Data = event.Payload
		next.StepStates[event.StepID] = step
		next.CurrentStepID = event.StepID

	case workflow.EventAPICallStarted:
		// no state change beyond bookkeeping; STEP_STARTED already
		// recorded the step entering in_progress.

	case workflow.EventAPICallCompleted:
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusCompleted
		completed := event.OccurredAt
		step.CompletedAt = &completed
		step.Data = event.Payload
		next.StepStates[event.StepID] = step
		next.CurrentStepID = event.StepID

	case workflow.EventAPICallFailed:
		var payload struct {
			Error string `json:"error"`
		}
		if err := unmarshalPayload(event, &payload); err != nil {
			return nil, err
		}
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusFailed
		step.Error = payload.Error
		next.StepStates[event.StepID] = step

	case workflow.EventNotificationSent:
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusCompleted
		completed := event.OccurredAt
		step.CompletedAt = &completed
		step.Data = event.Payload
		next.StepStates[event.StepID] = step
		next.CurrentStepID = event.StepID

	case workflow.EventNotificationFailed:
		var payload struct {
			Error string `json:"error"`
		}
		if err := unmarshalPayload(event, &payload); err != nil {
			return nil, err
		}
		step := next.StepStates[event.StepID]
		step.Status = workflow.StepStatusFailed
		step.Error = payload.Error
		next.StepStates[event.StepID] = step

	default:
		return nil, fmt.Errorf("statemachine: apply: %w: unrecognized event type %q", workflow.ErrIntegrityError, event.EventType)
	}

	return next, nil
}

func unmarshalPayload(event workflow.Event, v any) error {
	if len(event.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(event.Payload, v); err != nil {
		return fmt.Errorf("statemachine: apply: decode payload for %s: %w", event.EventType, err)
	}
	return nil
}
