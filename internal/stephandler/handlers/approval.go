package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Approval is the asynchronous "approval" step handler: execute creates an
// Approval Bookmark and suspends; resume is driven by an external approval
// submission carrying outcome approved|rejected.
type Approval struct {
	// DefaultExpiry is applied to every bookmark this handler creates when
	// the step definition does not configure its own.
	DefaultExpiry time.Duration
}

// NewApproval constructs an Approval handler with the given default
// bookmark expiry.
func NewApproval(defaultExpiry time.Duration) *Approval {
	return &Approval{DefaultExpiry: defaultExpiry}
}

func (Approval) Type() workflow.StepType { return workflow.StepTypeApproval }

func (Approval) Validate(_ workflow.StepDefinition, _ json.RawMessage) stephandler.ValidationResult {
	return stephandler.ValidationResult{Valid: true}
}

func (a Approval) Execute(_ context.Context, input stephandler.ExecuteInput) (stephandler.ExecuteResult, error) {
	expires := time.Now().Add(a.DefaultExpiry)
	return stephandler.ExecuteResult{
		Bookmark: &workflow.Bookmark{
			BookmarkID:           uuid.New(),
			WorkflowID:           input.Instance.ID,
			StepID:               input.Step.ID,
			Kind:                 workflow.BookmarkApproval,
			ExpectedPayloadShape: []byte(`{"outcome":"approved|rejected","comments":"string"}`),
			Active:               true,
			ExpiresAt:            &expires,
			CreatedAt:            time.Now(),
		},
	}, nil
}

// Resume consumes the approval submission. outcome must be "approved" or
// "rejected"; anything else is a caller error.
func (a Approval) Resume(_ context.Context, _ stephandler.ExecuteInput, _ workflow.Bookmark, payload json.RawMessage) (stephandler.ExecuteResult, error) {
	var submission struct {
		Outcome  string `json:"outcome"`
		Comments string `json:"comments,omitempty"`
	}
	if err := json.Unmarshal(payload, &submission); err != nil {
		return stephandler.ExecuteResult{}, fmt.Errorf("approval: resume: decode submission: %w", err)
	}
	switch submission.Outcome {
	case "approved":
		return stephandler.ExecuteResult{Outcome: "approved", Output: payload}, nil
	case "rejected":
		return stephandler.ExecuteResult{Outcome: "rejected", Output: payload}, nil
	default:
		return stephandler.ExecuteResult{}, fmt.Errorf("approval: resume: outcome must be approved or rejected, got %q", submission.Outcome)
	}
}

// Compensate revokes any downstream effect the approval authorized. The
// default is a no-op: approval itself is idempotent to reverse and any
// effect it unlocked (e.g. a subsequent api_call) carries its own
// compensation.
func (Approval) Compensate(_ context.Context, _ workflow.StepDefinition, _ *workflow.Instance) error {
	return nil
}

var (
	_ stephandler.Handler          = Approval{}
	_ stephandler.ResumableHandler = Approval{}
	_ stephandler.Compensator      = Approval{}
)
