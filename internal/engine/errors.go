package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/marketgrid/onboardengine/internal/workflow"
)

// OperationError is the uniform shape every Engine operation surfaces on
// failure: every surfaced error names the workflow, its
// current step, a stable error kind, and a human-readable message, with
// per-field detail for validation failures.
type OperationError struct {
	WorkflowID    uuid.UUID
	CurrentStepID string
	Kind          workflow.ErrorKind
	Message       string
	FieldErrors   []string
	Err           error
}

func (e *OperationError) Error() string {
	if len(e.FieldErrors) > 0 {
		return fmt.Sprintf("engine: workflow %s at step %q: %s: %s (%v)", e.WorkflowID, e.CurrentStepID, e.Kind, e.Message, e.FieldErrors)
	}
	return fmt.Sprintf("engine: workflow %s at step %q: %s: %s", e.WorkflowID, e.CurrentStepID, e.Kind, e.Message)
}

func (e *OperationError) Unwrap() error { return e.Err }

func opErr(instance *workflow.Instance, kind workflow.ErrorKind, err error) *OperationError {
	oe := &OperationError{Kind: kind, Message: err.Error(), Err: err}
	if instance != nil {
		oe.WorkflowID = instance.ID
		oe.CurrentStepID = instance.CurrentStepID
	}
	return oe
}
