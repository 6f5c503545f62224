// Package engine is the Workflow Engine: the orchestrator that exposes
// create/execute_step/pause/resume/resume_bookmark/rollback/validate/
// submit/approve/reject/cancel as in-process operations, delegating all
// business logic to its collaborators (Template Registry, Step Handler
// Registry, Saga Coordinator, Bookmark Manager, and the three stores).
// It is a thin delegate that validates preconditions and logs, never
// duplicating a collaborator's own logic.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/bookmark"
	"github.com/marketgrid/onboardengine/internal/eventstore"
	"github.com/marketgrid/onboardengine/internal/indexstore"
	"github.com/marketgrid/onboardengine/internal/saga"
	"github.com/marketgrid/onboardengine/internal/statemachine"
	"github.com/marketgrid/onboardengine/internal/statestore"
	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/template"
	"github.com/marketgrid/onboardengine/internal/tenant"
	"github.com/marketgrid/onboardengine/internal/tenantctx"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Engine is the Workflow Engine. It holds no business state of its own:
// every mutation is expressed as an event, applied through
// statemachine.Apply, and projected to the Index and State Stores.
type Engine struct {
	events    eventstore.Store
	index     indexstore.Store
	state     statestore.Store
	templates *template.Registry
	handlers  *stephandler.Registry
	sagas     *saga.Coordinator
	bookmarks bookmark.Store
	tenants   tenant.Repository
	logger    *zap.Logger

	// locks is a per-workflow sync.Map of *sync.Mutex: it serializes
	// state-mutating operations in-process before they ever reach the
	// database's advisory lock.
	locks sync.Map
}

// New constructs an Engine wired to its collaborators.
func New(
	events eventstore.Store,
	index indexstore.Store,
	state statestore.Store,
	templates *template.Registry,
	handlers *stephandler.Registry,
	sagas *saga.Coordinator,
	bookmarks bookmark.Store,
	tenants tenant.Repository,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		events:    events,
		index:     index,
		state:     state,
		templates: templates,
		handlers:  handlers,
		sagas:     sagas,
		bookmarks: bookmarks,
		tenants:   tenants,
		logger:    logger.With(zap.String("component", "engine")),
	}
}

func (e *Engine) lockFor(workflowID uuid.UUID) *sync.Mutex {
	lock, _ := e.locks.LoadOrStore(workflowID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// requireOperation enforces the role permission table before any
// collaborator is touched.
func requireOperation(tc tenantctx.Context, op string) error {
	if !tc.HasOperation(op) {
		return fmt.Errorf("%w: role %s does not grant %s", workflow.ErrPermissionDenied, tc.Actor.Role, op)
	}
	return nil
}

// ExecuteStepResult is the outcome of execute_step or resume_bookmark.
type ExecuteStepResult struct {
	Status     workflow.Status
	NextStepID string
	Outcome    string
	Output     json.RawMessage
	Paused     bool
}

// ValidationReport is the result of validate(workflow_id).
type ValidationReport struct {
	Valid  bool
	Errors []string
}

// Create assigns a new workflow id, appends WORKFLOW_CREATED, and inserts
// the State and Index rows.
func (e *Engine) Create(ctx context.Context, tc tenantctx.Context, marketRole string, templateVersion int, createdBy string) (uuid.UUID, error) {
	if err := requireOperation(tc, "create"); err != nil {
		return uuid.Nil, err
	}

	t, err := e.tenants.GetTenantByID(ctx, tc.TenantID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("engine: create: %w", err)
	}
	if !t.Status.IsActive() {
		return uuid.Nil, fmt.Errorf("%w: tenant %s is %s", workflow.ErrTenantNotActive, tc.TenantID, t.Status)
	}

	tmpl, err := e.resolveTemplate(marketRole, templateVersion)
	if err != nil {
		return uuid.Nil, err
	}

	workflowID := uuid.New()
	payload, _ := json.Marshal(map[string]any{
		"template_id":      tmpl.ID,
		"template_version": tmpl.Version,
		"market_role":      marketRole,
		"created_by":       createdBy,
	})

	event, err := e.events.Append(ctx, workflow.Event{
		WorkflowID:  workflowID,
		TenantID:    tc.TenantID,
		EventType:   workflow.EventWorkflowCreated,
		Payload:     payload,
		PerformedBy: createdBy,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("engine: create: append: %w", err)
	}

	instance, err := statemachine.Apply(&workflow.Instance{StepStates: map[string]workflow.StepState{}}, event)
	if err != nil {
		return uuid.Nil, fmt.Errorf("engine: create: apply: %w", err)
	}
	instance.TemplateID = tmpl.ID
	instance.TemplateVersion = tmpl.Version
	instance.Version = 1

	if err := e.state.Insert(ctx, tc, instance); err != nil {
		return uuid.Nil, fmt.Errorf("engine: create: state insert: %w", err)
	}
	if err := e.index.Insert(ctx, tc, toIndexRow(instance, event.SequenceNo)); err != nil {
		return uuid.Nil, fmt.Errorf("engine: create: index insert: %w", err)
	}

	e.logger.Info("workflow created", zap.String("workflow_id", workflowID.String()), zap.String("market_role", marketRole))
	return workflowID, nil
}

func (e *Engine) resolveTemplate(marketRole string, version int) (*workflow.Template, error) {
	if version == 0 {
		return e.templates.ActiveFor(marketRole)
	}
	return e.templates.Get(marketRole, version)
}

// loadInstanceAndTemplate loads current projected state and the template
// governing it.
func (e *Engine) loadInstanceAndTemplate(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID) (*workflow.Instance, *workflow.Template, error) {
	instance, err := e.state.Get(ctx, tc, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w: %v", workflow.ErrNotFound, err)
	}
	tmpl, err := e.templates.Get(instance.MarketRole, instance.TemplateVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: load template: %w", err)
	}
	return instance, tmpl, nil
}

// appendAndProject is the common tail of every mutating operation: append
// the event, fold it via statemachine.Apply, layer the awaiting_validation
// derivation on top (statemachine.DeriveStatus), persist the new state with
// optimistic concurrency, and update the Index projection.
func (e *Engine) appendAndProject(ctx context.Context, tc tenantctx.Context, instance *workflow.Instance, tmpl *workflow.Template, event workflow.Event) (*workflow.Instance, error) {
	event.WorkflowID = instance.ID
	event.TenantID = instance.TenantID
	appended, err := e.events.Append(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("engine: append: %w", err)
	}
	next, err := statemachine.Apply(instance, appended)
	if err != nil {
		return nil, fmt.Errorf("engine: apply: %w", err)
	}
	next = statemachine.DeriveStatus(next, tmpl)
	next.Version = instance.Version
	if err := e.state.UpdateState(ctx, tc, next, instance.Version); err != nil {
		return nil, fmt.Errorf("engine: project state: %w", err)
	}
	if err := e.index.UpdateStatus(ctx, tc, next.ID, next.Status, next.CurrentStepID, appended.SequenceNo); err != nil {
		e.logger.Warn("index projection lag: recovery will reconcile",
			zap.String("workflow_id", next.ID.String()), zap.Error(err))
	}
	return next, nil
}

func toIndexRow(instance *workflow.Instance, sequenceNo int64) workflow.IndexRow {
	return workflow.IndexRow{
		ID:                  instance.ID,
		TenantID:            instance.TenantID,
		TemplateID:          instance.TemplateID,
		TemplateVersion:     instance.TemplateVersion,
		MarketRole:          instance.MarketRole,
		Status:              instance.Status,
		CurrentStepID:       instance.CurrentStepID,
		CreatedBy:           instance.CreatedBy,
		CreatedAt:           instance.CreatedAt,
		UpdatedAt:           instance.UpdatedAt,
		ProjectedSequenceNo: sequenceNo,
	}
}

// ExecuteStep runs one step: validate, dispatch the handler, and append
// the resulting event(s).
func (e *Engine) ExecuteStep(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, stepID string, data json.RawMessage, performedBy string) (ExecuteStepResult, error) {
	if err := requireOperation(tc, "execute_step"); err != nil {
		return ExecuteStepResult{}, err
	}

	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	instance, tmpl, err := e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return ExecuteStepResult{}, err
	}

	machine := statemachine.New(instance, tmpl)
	if !machine.CanTransition(stepID) {
		return ExecuteStepResult{}, opErr(instance, workflow.KindInvalidTransition, fmt.Errorf("%w: %s not reachable from %s", workflow.ErrInvalidTransition, stepID, instance.CurrentStepID))
	}

	step, _ := tmpl.Step(stepID)
	handler, err := e.handlers.Get(step.Type)
	if err != nil {
		return ExecuteStepResult{}, opErr(instance, workflow.KindIntegrityError, err)
	}

	if verdict := handler.Validate(step, data); !verdict.Valid {
		return ExecuteStepResult{}, &OperationError{WorkflowID: instance.ID, CurrentStepID: instance.CurrentStepID, Kind: workflow.KindValidation, Message: "step data failed validation", FieldErrors: verdict.Errors, Err: workflow.ErrInvalidTransition}
	}

	startedPayload, _ := json.Marshal(map[string]any{})
	instance, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{
		EventType:   workflow.EventStepStarted,
		StepID:      stepID,
		Payload:     startedPayload,
		PerformedBy: performedBy,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return ExecuteStepResult{}, err
	}

	// The handler runs with the per-workflow lock released: api_call issues
	// real outbound HTTP, and no step handler should hold this lock across
	// external I/O. State is reloaded fresh once the lock is retaken, since
	// a concurrent operation may have advanced it in the meantime.
	lock.Unlock()
	result, execErr := handler.Execute(ctx, stephandler.ExecuteInput{Step: step, Instance: instance, Data: data, PerformedBy: performedBy})
	lock.Lock()

	instance, tmpl, err = e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return ExecuteStepResult{}, err
	}
	step, _ = tmpl.Step(stepID)

	if execErr != nil {
		failEventType := workflow.EventStepFailed
		switch step.Type {
		case workflow.StepTypeAPICall:
			failEventType = workflow.EventAPICallFailed
		case workflow.StepTypeNotification:
			failEventType = workflow.EventNotificationFailed
		}
		failPayload, _ := json.Marshal(map[string]string{"error": execErr.Error()})
		if _, err := e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: failEventType, StepID: stepID, Payload: failPayload, PerformedBy: performedBy, OccurredAt: time.Now().UTC()}); err != nil {
			return ExecuteStepResult{}, err
		}
		return ExecuteStepResult{}, opErr(instance, workflow.KindExternalPermanent, execErr)
	}

	if result.Bookmark != nil {
		if err := e.bookmarks.Create(ctx, tc, *result.Bookmark); err != nil {
			return ExecuteStepResult{}, fmt.Errorf("engine: execute_step: create bookmark: %w", err)
		}
		pausedPayload, _ := json.Marshal(map[string]string{"bookmark_id": result.Bookmark.BookmarkID.String()})
		instance, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: workflow.EventApprovalRequested, StepID: stepID, Payload: pausedPayload, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
		if err != nil {
			return ExecuteStepResult{}, err
		}
		return ExecuteStepResult{Status: instance.Status, Paused: true}, nil
	}

	// validation is the one handler whose failure is not a handler error:
	// it reports Outcome "failed" with a nil error, and per spec that must
	// not advance current_step_id or mark the step completed.
	if step.Type == workflow.StepTypeValidation && result.Outcome == "failed" {
		var verrs []string
		if len(result.Output) > 0 {
			if err := json.Unmarshal(result.Output, &verrs); err != nil {
				return ExecuteStepResult{}, fmt.Errorf("engine: execute_step: decode validation errors: %w", err)
			}
		}
		failedPayload, _ := json.Marshal(map[string]any{"errors": verrs})
		instance, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: workflow.EventValidationFailed, StepID: stepID, Payload: failedPayload, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
		if err != nil {
			return ExecuteStepResult{}, err
		}
		return ExecuteStepResult{Status: instance.Status, Outcome: result.Outcome, Output: result.Output}, nil
	}

	completedPayload := result.Output
	if completedPayload == nil {
		completedPayload = json.RawMessage("{}")
	}

	completedEventType := workflow.EventStepCompleted
	switch step.Type {
	case workflow.StepTypeValidation:
		completedEventType = workflow.EventValidationPassed
	case workflow.StepTypeAPICall:
		completedEventType = workflow.EventAPICallCompleted
	case workflow.StepTypeNotification:
		completedEventType = workflow.EventNotificationSent
	}

	instance, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: completedEventType, StepID: stepID, Payload: completedPayload, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
	if err != nil {
		return ExecuteStepResult{}, err
	}

	nextStep, _ := nextUncompletedStep(tmpl, instance)
	if step.Type == workflow.StepTypeDecision && result.Outcome != "" {
		// The decision handler resolves Outcome to the matched branch's
		// name, which doubles as the next step id rather than leaving
		// next-step selection to template order.
		nextStep = result.Outcome
	}
	return ExecuteStepResult{Status: instance.Status, NextStepID: nextStep, Outcome: result.Outcome, Output: result.Output}, nil
}

// nextUncompletedStep returns the template's next required step in order
// after the last completed one, or "" if every required step is done.
func nextUncompletedStep(tmpl *workflow.Template, instance *workflow.Instance) (string, bool) {
	for _, stepID := range tmpl.RequiredSteps() {
		state, ok := instance.StepStates[stepID]
		if !ok || state.Status != workflow.StepStatusCompleted {
			return stepID, true
		}
	}
	return "", false
}

// Pause transitions in_progress -> paused; idempotent when already paused.
func (e *Engine) Pause(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, performedBy string) error {
	if err := requireOperation(tc, "pause"); err != nil {
		return err
	}
	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	instance, tmpl, err := e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return err
	}
	if instance.Status == workflow.StatusPaused {
		return nil
	}
	if instance.Status.IsTerminal() {
		return opErr(instance, workflow.KindInvalidTransition, fmt.Errorf("%w: workflow is %s", workflow.ErrInvalidTransition, instance.Status))
	}
	_, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: workflow.EventWorkflowPaused, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
	return err
}

// Resume transitions paused -> in_progress; idempotent when already
// in_progress.
func (e *Engine) Resume(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, performedBy string) error {
	if err := requireOperation(tc, "resume"); err != nil {
		return err
	}
	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	instance, tmpl, err := e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return err
	}
	if instance.Status == workflow.StatusInProgress {
		return nil
	}
	if instance.Status != workflow.StatusPaused {
		return opErr(instance, workflow.KindInvalidTransition, fmt.Errorf("%w: workflow is %s, not paused", workflow.ErrInvalidTransition, instance.Status))
	}
	_, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: workflow.EventWorkflowResumed, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
	return err
}

// ResumeBookmark consumes bookmarkID exactly once and re-enters its
// step's handler with the resume payload, following the same completion
// path as ExecuteStep.
func (e *Engine) ResumeBookmark(ctx context.Context, tc tenantctx.Context, workflowID, bookmarkID uuid.UUID, payload json.RawMessage, performedBy string) (ExecuteStepResult, error) {
	if err := requireOperation(tc, "resume"); err != nil {
		return ExecuteStepResult{}, err
	}

	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	bm, err := e.bookmarks.Consume(ctx, tc, bookmarkID)
	if err != nil {
		return ExecuteStepResult{}, fmt.Errorf("engine: resume_bookmark: %w", err)
	}

	instance, tmpl, err := e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return ExecuteStepResult{}, err
	}
	step, _ := tmpl.Step(bm.StepID)
	handler, err := e.handlers.Get(step.Type)
	if err != nil {
		return ExecuteStepResult{}, opErr(instance, workflow.KindIntegrityError, err)
	}
	resumable, ok := handler.(stephandler.ResumableHandler)
	if !ok {
		return ExecuteStepResult{}, opErr(instance, workflow.KindIntegrityError, fmt.Errorf("handler for step type %s is not resumable", step.Type))
	}

	result, err := resumable.Resume(ctx, stephandler.ExecuteInput{Step: step, Instance: instance, PerformedBy: performedBy}, bm, payload)
	if err != nil {
		return ExecuteStepResult{}, opErr(instance, workflow.KindValidation, err)
	}

	var eventType workflow.EventType
	switch result.Outcome {
	case "approved":
		eventType = workflow.EventApprovalGranted
	case "rejected":
		eventType = workflow.EventApprovalRejected
	default:
		eventType = workflow.EventStepCompleted
	}

	body := result.Output
	if body == nil {
		body = json.RawMessage("{}")
	}
	instance, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: eventType, StepID: bm.StepID, Payload: body, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
	if err != nil {
		return ExecuteStepResult{}, err
	}

	nextStep, _ := nextUncompletedStep(tmpl, instance)
	return ExecuteStepResult{Status: instance.Status, NextStepID: nextStep, Outcome: result.Outcome, Output: result.Output}, nil
}

// Rollback invokes the Saga Coordinator to compensate every step strictly
// after toStepID, then appends WORKFLOW_ROLLED_BACK (or, on compensation
// failure, WORKFLOW_FAILED). toStepID re-enters in_progress, ready to be
// re-executed.
func (e *Engine) Rollback(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, toStepID string, performedBy string) error {
	if err := requireOperation(tc, "rollback"); err != nil {
		return err
	}
	return e.rollbackTo(ctx, tc, workflowID, toStepID, "", performedBy)
}

// rollbackTo is Rollback's implementation, shared with Reject so that a
// market_ops rejection reopens its target step the same way an explicit
// rollback does, instead of marking it failed. comments, when non-empty, is
// carried in the WORKFLOW_ROLLED_BACK payload for audit purposes only; it
// has no effect on Apply.
func (e *Engine) rollbackTo(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, toStepID, comments, performedBy string) error {
	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	instance, tmpl, err := e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return err
	}
	if instance.Status.IsTerminal() {
		return opErr(instance, workflow.KindInvalidTransition, fmt.Errorf("%w: workflow is in terminal status %s", workflow.ErrInvalidTransition, instance.Status))
	}
	if to, ok := instance.StepStates[toStepID]; !ok || to.Status != workflow.StepStatusCompleted {
		return opErr(instance, workflow.KindInvalidTransition, fmt.Errorf("%w: %s is not a completed step in this workflow's history", workflow.ErrInvalidTransition, toStepID))
	}

	outcomes, compErr := e.sagas.Compensate(ctx, tmpl, instance, toStepID)
	for _, o := range outcomes {
		failed := !o.Compensated
		var errMsg string
		if o.Err != nil {
			errMsg = o.Err.Error()
		}
		body, _ := json.Marshal(map[string]any{"failed": failed, "error": errMsg})
		instance, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: workflow.EventStepCompensated, StepID: o.StepID, Payload: body, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
		if err != nil {
			return err
		}
	}

	if compErr != nil {
		_, err := e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: workflow.EventWorkflowFailed, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		return opErr(instance, workflow.KindConflict, fmt.Errorf("rollback: %w", compErr))
	}

	rolledBackPayload, _ := json.Marshal(map[string]string{"to_step": toStepID, "comments": comments})
	_, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: workflow.EventWorkflowRolledBack, StepID: toStepID, Payload: rolledBackPayload, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
	return err
}

// Validate re-runs every required step's validator over accumulated
// step_states[*].data and returns aggregated errors; it does not mutate
// state.
func (e *Engine) Validate(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID) (ValidationReport, error) {
	if err := requireOperation(tc, "validate"); err != nil {
		return ValidationReport{}, err
	}

	instance, tmpl, err := e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return ValidationReport{}, err
	}

	var errs []string
	for _, stepID := range tmpl.RequiredSteps() {
		step, _ := tmpl.Step(stepID)
		state, ok := instance.StepStates[stepID]
		if !ok || state.Status != workflow.StepStatusCompleted {
			errs = append(errs, fmt.Sprintf("%s: required step has not completed", stepID))
			continue
		}
		handler, err := e.handlers.Get(step.Type)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s", stepID, err))
			continue
		}
		if verdict := handler.Validate(step, state.Data); !verdict.Valid {
			errs = append(errs, verdict.Errors...)
		}
	}

	if len(errs) == 0 {
		return ValidationReport{Valid: true}, nil
	}
	return ValidationReport{Valid: false, Errors: errs}, nil
}

// Submit requires Validate to pass, then transitions to submitted.
func (e *Engine) Submit(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, performedBy string) error {
	if err := requireOperation(tc, "submit"); err != nil {
		return err
	}

	report, err := e.Validate(ctx, tc, workflowID)
	if err != nil {
		return err
	}
	if !report.Valid {
		return &OperationError{WorkflowID: workflowID, Kind: workflow.KindValidation, Message: "workflow failed validation", FieldErrors: report.Errors, Err: workflow.ErrInvalidTransition}
	}

	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	instance, tmpl, err := e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return err
	}
	_, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: workflow.EventWorkflowSubmitted, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
	return err
}

// Approve requires market_ops; it transitions a submitted workflow to
// completed.
func (e *Engine) Approve(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, comments string, performedBy string) error {
	if err := requireOperation(tc, "approve"); err != nil {
		return err
	}
	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	instance, tmpl, err := e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return err
	}
	if instance.Status != workflow.StatusSubmitted {
		return opErr(instance, workflow.KindInvalidTransition, fmt.Errorf("%w: workflow is %s, not submitted", workflow.ErrInvalidTransition, instance.Status))
	}
	payload, _ := json.Marshal(map[string]string{"comments": comments})
	_, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: workflow.EventWorkflowCompleted, Payload: payload, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
	return err
}

// Reject requires market_ops; it transitions a submitted workflow back to
// returnToStep (or, if returnToStep is empty, one step back by default),
// reopening that step as in_progress through the same rollback path
// Rollback uses, so rejecting for rework never leaves the target step
// marked failed.
func (e *Engine) Reject(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, comments, returnToStep, performedBy string) error {
	if err := requireOperation(tc, "reject"); err != nil {
		return err
	}

	instance, tmpl, err := e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return err
	}
	if instance.Status != workflow.StatusSubmitted {
		return opErr(instance, workflow.KindInvalidTransition, fmt.Errorf("%w: workflow is %s, not submitted", workflow.ErrInvalidTransition, instance.Status))
	}

	target := returnToStep
	if target == "" {
		target = oneStepBack(tmpl, instance)
	}

	if err := e.rollbackTo(ctx, tc, workflowID, target, comments, performedBy); err != nil {
		return fmt.Errorf("engine: reject: %w", err)
	}
	return nil
}

// oneStepBack returns the step immediately before the current one in
// template order, or the template's first step if there is none earlier.
func oneStepBack(tmpl *workflow.Template, instance *workflow.Instance) string {
	steps := tmpl.RequiredSteps()
	for i, id := range steps {
		if id == instance.CurrentStepID && i > 0 {
			return steps[i-1]
		}
	}
	if len(steps) > 0 {
		return steps[0]
	}
	return instance.CurrentStepID
}

// Cancel sets cancelled from any non-terminal state. Compensation is not
// automatic: the operator invokes Rollback separately if needed.
func (e *Engine) Cancel(ctx context.Context, tc tenantctx.Context, workflowID uuid.UUID, reason, performedBy string) error {
	if err := requireOperation(tc, "cancel"); err != nil {
		return err
	}
	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	instance, tmpl, err := e.loadInstanceAndTemplate(ctx, tc, workflowID)
	if err != nil {
		return err
	}
	if instance.Status.IsTerminal() {
		return opErr(instance, workflow.KindInvalidTransition, fmt.Errorf("%w: workflow is already %s", workflow.ErrInvalidTransition, instance.Status))
	}
	payload, _ := json.Marshal(map[string]string{"reason": reason})
	_, err = e.appendAndProject(ctx, tc, instance, tmpl, workflow.Event{EventType: workflow.EventWorkflowCancelled, Payload: payload, PerformedBy: performedBy, OccurredAt: time.Now().UTC()})
	return err
}
