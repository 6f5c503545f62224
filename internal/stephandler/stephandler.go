// Package stephandler is the Step Handler Registry: dispatches step
// execution to a handler keyed by step type.
package stephandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/workflow"
)

// ErrHandlerConflict is returned by Register when a handler is already
// registered for a step type.
var ErrHandlerConflict = errors.New("stephandler: a handler is already registered for this step type")

// ErrHandlerNotFound is returned by Get when no handler is registered for a
// step type.
var ErrHandlerNotFound = errors.New("stephandler: no handler registered for this step type")

// ErrRegistryFrozen is returned by Register once Freeze has been called.
var ErrRegistryFrozen = errors.New("stephandler: registry is frozen, no further handlers may be registered")

// ValidationResult is a handler's verdict on submitted step data.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ExecuteInput carries everything a handler needs to run one step.
type ExecuteInput struct {
	Step        workflow.StepDefinition
	Instance    *workflow.Instance
	Data        json.RawMessage
	PerformedBy string
}

// ExecuteResult is a handler's outcome after Execute or Resume.
type ExecuteResult struct {
	// Outcome is one of "default", "failed", "approved", "rejected",
	// "passed", or a decision handler's configured branch name.
	Outcome string
	Output  json.RawMessage
	// Bookmark is non-nil when the handler suspends awaiting external
	// input; the Engine persists it and releases the per-workflow lock.
	Bookmark *workflow.Bookmark
}

// Handler implements one step type's validate/execute contract.
type Handler interface {
	Type() workflow.StepType
	Validate(step workflow.StepDefinition, data json.RawMessage) ValidationResult
	Execute(ctx context.Context, input ExecuteInput) (ExecuteResult, error)
}

// ResumableHandler is implemented by handlers whose bookmarks carry a
// resume payload back into the step (approval and manual).
type ResumableHandler interface {
	Handler
	Resume(ctx context.Context, input ExecuteInput, bookmark workflow.Bookmark, payload json.RawMessage) (ExecuteResult, error)
}

// Compensator is implemented by handlers that can undo a completed step's
// effects during rollback.
type Compensator interface {
	Compensate(ctx context.Context, step workflow.StepDefinition, instance *workflow.Instance) error
}

// Registry dispatches to a Handler by workflow.StepType. It is frozen after
// startup wiring completes; Freeze is the signal that no further
// registrations are expected, matching the Template Registry's
// process-wide immutability policy.
type Registry struct {
	mu       sync.RWMutex
	handlers map[workflow.StepType]Handler
	frozen   bool
	logger   *zap.Logger
}

// New constructs an empty Registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[workflow.StepType]Handler),
		logger:   logger.With(zap.String("component", "stephandler-registry")),
	}
}

// Register adds h under h.Type(). It fails once Freeze has been called.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.handlers[h.Type()]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerConflict, h.Type())
	}
	r.handlers[h.Type()] = h
	r.logger.Info("registered step handler", zap.String("type", string(h.Type())))
	return nil
}

// Get returns the handler for stepType.
func (r *Registry) Get(stepType workflow.StepType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stepType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, stepType)
	}
	return h, nil
}

// Freeze prevents any further registration; it is called once at startup
// after every built-in handler has been wired.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Has reports whether a handler is registered for stepType.
func (r *Registry) Has(stepType workflow.StepType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[stepType]
	return ok
}
