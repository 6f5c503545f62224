// Package saga is the Saga Coordinator: it compensates previously
// completed steps when a workflow is rolled back. Its ordering and
// fail-fast behavior are grounded directly on the reverse-order
// compensation pattern in firelynx's txmgr.SagaOrchestrator, adapted with
// one deliberate deviation: that orchestrator iterates participants in
// sorted-name order for deterministic reload ordering, but compensation
// here has no freedom to pick an order: correctness requires strictly
// reverse completion order, so steps are sorted by CompletedAt descending
// rather than alphabetically.
package saga

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// ErrCompensationExhausted is returned when a step's compensation handler
// fails every configured retry attempt. The Coordinator stops at the
// first such step rather than continuing to compensate the rest of the
// path: a saga that cannot fully unwind is left for operator inspection,
// not silently declared done.
var ErrCompensationExhausted = errors.New("saga: compensation exhausted its retry budget")

// RetryPolicy bounds the retries applied to each step's compensation
// call, matching the retry policy used for forward execution.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff backoff.BackOff
}

// DefaultRetryPolicy returns the policy applied when the caller does not
// override it.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, BaseBackoff: backoff.NewExponentialBackOff()}
}

// StepOutcome records what happened when the Coordinator attempted to
// compensate one step.
type StepOutcome struct {
	StepID      string
	Compensated bool
	Attempts    int
	Err         error
}

// Coordinator orders and executes compensations during rollback.
type Coordinator struct {
	handlers *stephandler.Registry
	retry    RetryPolicy
	logger   *zap.Logger
}

// New constructs a Coordinator dispatching compensation through handlers.
func New(handlers *stephandler.Registry, retry RetryPolicy, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		handlers: handlers,
		retry:    retry,
		logger:   logger.With(zap.String("component", "saga-coordinator")),
	}
}

// Compensate reverses every completed step strictly after toStepID, in
// strict reverse completion order: it
// never compensates in parallel and never skips ahead even if forward
// execution interleaved. It returns the per-step outcomes in the order
// they were attempted; if any step exhausts its retry budget, Compensate
// stops and returns ErrCompensationExhausted — the caller (Engine) is
// responsible for marking the workflow failed and appending the failure
// event, compensation does not partially continue past a failure.
func (c *Coordinator) Compensate(ctx context.Context, template *workflow.Template, instance *workflow.Instance, toStepID string) ([]StepOutcome, error) {
	path := c.reverseCompletionPath(instance, toStepID)

	var outcomes []StepOutcome
	for _, stepID := range path {
		stepDef, ok := template.Step(stepID)
		if !ok {
			c.logger.Warn("skipping compensation for step no longer in template",
				zap.String("step_id", stepID))
			continue
		}

		outcome := c.compensateStep(ctx, stepDef, instance)
		outcomes = append(outcomes, outcome)
		if outcome.Err != nil {
			c.logger.Error("saga stopped: compensation exhausted retries",
				zap.String("workflow_id", instance.ID.String()),
				zap.String("step_id", stepID),
				zap.Error(outcome.Err),
			)
			return outcomes, fmt.Errorf("%w: step %s: %v", ErrCompensationExhausted, stepID, outcome.Err)
		}
	}
	return outcomes, nil
}

func (c *Coordinator) compensateStep(ctx context.Context, step workflow.StepDefinition, instance *workflow.Instance) StepOutcome {
	handler, err := c.handlers.Get(step.Type)
	if err != nil {
		// No handler registered at all is an integrity problem, not a
		// compensation failure; treat it as already-compensated since
		// there is nothing to undo.
		return StepOutcome{StepID: step.ID, Compensated: true}
	}

	compensator, ok := handler.(stephandler.Compensator)
	if !ok {
		// Handlers with no compensation behavior (e.g. decision) have
		// nothing to undo.
		return StepOutcome{StepID: step.ID, Compensated: true}
	}

	attempts := 0
	policy := backoff.WithMaxRetries(c.retry.BaseBackoff, uint64(c.retry.MaxAttempts))
	err = backoff.Retry(func() error {
		attempts++
		if cerr := compensator.Compensate(ctx, step, instance); cerr != nil {
			c.logger.Warn("compensation attempt failed, retrying",
				zap.String("step_id", step.ID),
				zap.Int("attempt", attempts),
				zap.Error(cerr),
			)
			return cerr
		}
		return nil
	}, policy)

	if err != nil {
		return StepOutcome{StepID: step.ID, Compensated: false, Attempts: attempts, Err: err}
	}
	return StepOutcome{StepID: step.ID, Compensated: true, Attempts: attempts}
}

// reverseCompletionPath returns the IDs of every step completed strictly
// after toStepID's completion, in reverse completion order. If toStepID
// was never completed (e.g. it is the template's first step), every
// completed step is included.
func (c *Coordinator) reverseCompletionPath(instance *workflow.Instance, toStepID string) []string {
	var cutoff time.Time
	if to, ok := instance.StepStates[toStepID]; ok && to.CompletedAt != nil {
		cutoff = *to.CompletedAt
	}

	type completed struct {
		stepID      string
		completedAt time.Time
	}
	var steps []completed
	for stepID, state := range instance.StepStates {
		if state.Status != workflow.StepStatusCompleted || state.CompletedAt == nil {
			continue
		}
		if stepID == toStepID {
			continue
		}
		if state.CompletedAt.After(cutoff) {
			steps = append(steps, completed{stepID: stepID, completedAt: *state.CompletedAt})
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].completedAt.After(steps[j].completedAt)
	})

	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.stepID
	}
	return ids
}
