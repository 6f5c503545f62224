package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Manual is the asynchronous "manual" step handler: an opaque human task
// that suspends the workflow until an operator submits an arbitrary
// payload as its completion signal. Unlike Approval it carries no
// approved/rejected semantics — any submitted payload completes the step
// with outcome "default".
//
// The bookmark it creates uses workflow.BookmarkForm: of the four bookmark
// kinds, a manual task's "submit an arbitrary payload" shape is closest to
// a form submission, and it is not an approval, an API callback, or a
// timer.
type Manual struct {
	// DefaultExpiry is applied to every bookmark this handler creates when
	// the step definition does not configure its own.
	DefaultExpiry time.Duration
}

// NewManual constructs a Manual handler with the given default bookmark
// expiry.
func NewManual(defaultExpiry time.Duration) *Manual {
	return &Manual{DefaultExpiry: defaultExpiry}
}

func (Manual) Type() workflow.StepType { return workflow.StepTypeManual }

func (Manual) Validate(_ workflow.StepDefinition, _ json.RawMessage) stephandler.ValidationResult {
	return stephandler.ValidationResult{Valid: true}
}

func (m Manual) Execute(_ context.Context, input stephandler.ExecuteInput) (stephandler.ExecuteResult, error) {
	expires := time.Now().Add(m.DefaultExpiry)
	return stephandler.ExecuteResult{
		Bookmark: &workflow.Bookmark{
			BookmarkID: uuid.New(),
			WorkflowID: input.Instance.ID,
			StepID:     input.Step.ID,
			Kind:       workflow.BookmarkForm,
			Active:     true,
			ExpiresAt:  &expires,
			CreatedAt:  time.Now(),
		},
	}, nil
}

// Resume completes the manual task with whatever payload the operator
// submitted; there is no outcome branching.
func (Manual) Resume(_ context.Context, _ stephandler.ExecuteInput, _ workflow.Bookmark, payload json.RawMessage) (stephandler.ExecuteResult, error) {
	return stephandler.ExecuteResult{Outcome: "default", Output: payload}, nil
}

// Compensate has nothing to undo: a manual task records an external fact,
// it does not cause one.
func (Manual) Compensate(_ context.Context, _ workflow.StepDefinition, _ *workflow.Instance) error {
	return nil
}

var (
	_ stephandler.Handler          = Manual{}
	_ stephandler.ResumableHandler = Manual{}
	_ stephandler.Compensator      = Manual{}
)
