// Package workflow defines the shared data model that every engine
// component (event store, stores, state machine, handlers, saga, engine
// itself) operates on: instances, step states, events, and bookmarks.
package workflow

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a workflow instance's position in its lifecycle.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusInProgress         Status = "in_progress"
	StatusPaused             Status = "paused"
	StatusAwaitingValidation Status = "awaiting_validation"
	StatusSubmitted          Status = "submitted"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusRolledBack         Status = "rolled_back"
	StatusCancelled          Status = "cancelled"
)

// IsTerminal reports whether s is a final status; no further transitions
// are permitted once reached.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusPaused, StatusAwaitingValidation,
		StatusSubmitted, StatusCompleted, StatusFailed, StatusRolledBack, StatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus is a single step's execution state within an instance.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusPaused     StepStatus = "paused"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

// StepType names a built-in step handler kind.
type StepType string

const (
	StepTypeForm         StepType = "form"
	StepTypeApproval     StepType = "approval"
	StepTypeAPICall      StepType = "api_call"
	StepTypeNotification StepType = "notification"
	StepTypeValidation   StepType = "validation"
	StepTypeDecision     StepType = "decision"
	StepTypeManual       StepType = "manual"
)

// EventType enumerates every fact that can be appended to a workflow's event
// log. apply_event (internal/statemachine) must define a transformation for
// every value here; unknown types are rejected, not ignored.
type EventType string

const (
	EventWorkflowCreated    EventType = "WORKFLOW_CREATED"
	EventWorkflowStarted    EventType = "WORKFLOW_STARTED"
	EventWorkflowPaused     EventType = "WORKFLOW_PAUSED"
	EventWorkflowResumed    EventType = "WORKFLOW_RESUMED"
	EventWorkflowSubmitted  EventType = "WORKFLOW_SUBMITTED"
	EventWorkflowCompleted  EventType = "WORKFLOW_COMPLETED"
	EventWorkflowFailed     EventType = "WORKFLOW_FAILED"
	EventWorkflowCancelled  EventType = "WORKFLOW_CANCELLED"
	EventWorkflowRolledBack EventType = "WORKFLOW_ROLLED_BACK"
	EventStepStarted        EventType = "STEP_STARTED"
	EventStepCompleted      EventType = "STEP_COMPLETED"
	EventStepFailed         EventType = "STEP_FAILED"
	EventStepValidated      EventType = "STEP_VALIDATED"
	EventStepPaused         EventType = "STEP_PAUSED"
	EventStepResumed        EventType = "STEP_RESUMED"
	EventStepSkipped        EventType = "STEP_SKIPPED"
	EventStepCompensated    EventType = "STEP_COMPENSATED"
	EventApprovalRequested  EventType = "APPROVAL_REQUESTED"
	EventApprovalGranted    EventType = "APPROVAL_GRANTED"
	EventApprovalRejected   EventType = "APPROVAL_REJECTED"
	EventDataUpdated        EventType = "DATA_UPDATED"
	EventValidationFailed   EventType = "VALIDATION_FAILED"
	EventValidationPassed   EventType = "VALIDATION_PASSED"
	EventAPICallStarted     EventType = "API_CALL_STARTED"
	EventAPICallCompleted   EventType = "API_CALL_COMPLETED"
	EventAPICallFailed      EventType = "API_CALL_FAILED"
	EventNotificationSent   EventType = "NOTIFICATION_SENT"
	EventNotificationFailed EventType = "NOTIFICATION_FAILED"
)

// AllEventTypes lists every defined EventType, for apply_event totality
// checks and tests that assert nothing was forgotten.
var AllEventTypes = []EventType{
	EventWorkflowCreated, EventWorkflowStarted, EventWorkflowPaused, EventWorkflowResumed,
	EventWorkflowSubmitted, EventWorkflowCompleted, EventWorkflowFailed, EventWorkflowCancelled,
	EventWorkflowRolledBack, EventStepStarted, EventStepCompleted, EventStepFailed,
	EventStepValidated, EventStepPaused, EventStepResumed, EventStepSkipped, EventStepCompensated,
	EventApprovalRequested, EventApprovalGranted, EventApprovalRejected, EventDataUpdated,
	EventValidationFailed, EventValidationPassed, EventAPICallStarted, EventAPICallCompleted,
	EventAPICallFailed, EventNotificationSent, EventNotificationFailed,
}

// Event is a single immutable fact appended to a workflow's log.
type Event struct {
	EventID     uuid.UUID       `json:"event_id"`
	WorkflowID  uuid.UUID       `json:"workflow_id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	SequenceNo  int64           `json:"sequence_no"`
	EventType   EventType       `json:"event_type"`
	StepID      string          `json:"step_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	PerformedBy string          `json:"performed_by"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// StepState is the execution state of one step within one instance.
type StepState struct {
	StepID           string          `json:"step_id"`
	Status           StepStatus      `json:"status"`
	Data             json.RawMessage `json:"data,omitempty"`
	ValidationErrors []string        `json:"validation_errors,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	PausedAt         *time.Time      `json:"paused_at,omitempty"`
	CompletedBy      string          `json:"completed_by,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Clone returns a deep copy of the step state.
func (s StepState) Clone() StepState {
	clone := s
	if s.Data != nil {
		clone.Data = append(json.RawMessage(nil), s.Data...)
	}
	if s.ValidationErrors != nil {
		clone.ValidationErrors = append([]string(nil), s.ValidationErrors...)
	}
	return clone
}

// Instance is the full projected state of one workflow: the document the
// State Store persists and the object the State Machine operates over.
type Instance struct {
	ID              uuid.UUID            `json:"id"`
	TenantID        uuid.UUID            `json:"tenant_id"`
	TemplateID      uuid.UUID            `json:"template_id"`
	TemplateVersion int                  `json:"template_version"`
	MarketRole      string               `json:"market_role"`
	Status          Status               `json:"status"`
	CurrentStepID   string               `json:"current_step_id,omitempty"`
	StepStates      map[string]StepState `json:"step_states"`
	Metadata        map[string]string    `json:"metadata,omitempty"`
	CreatedBy       string               `json:"created_by"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`

	// Version is the optimistic-concurrency counter for State Store writes.
	Version int `json:"version"`

	// LastSequenceNo is the highest event sequence number folded into this
	// projection; used to detect and bound projection lag.
	LastSequenceNo int64 `json:"last_sequence_no"`
}

// Clone returns a deep copy of the instance, safe to mutate independently
// of the original (used by in-memory store fakes and replay).
func (i *Instance) Clone() *Instance {
	clone := *i
	clone.StepStates = make(map[string]StepState, len(i.StepStates))
	for k, v := range i.StepStates {
		clone.StepStates[k] = v.Clone()
	}
	if i.Metadata != nil {
		clone.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// IndexRow is the Index Store's flat, queryable projection of an instance.
type IndexRow struct {
	ID                  uuid.UUID `json:"id"`
	TenantID            uuid.UUID `json:"tenant_id"`
	TemplateID          uuid.UUID `json:"template_id"`
	TemplateVersion     int       `json:"template_version"`
	MarketRole          string    `json:"market_role"`
	Status              Status    `json:"status"`
	CurrentStepID       string    `json:"current_step_id,omitempty"`
	CreatedBy           string    `json:"created_by"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	ProjectedSequenceNo int64     `json:"projected_sequence_no"`
}

// BookmarkKind names the external input a bookmark is waiting for.
type BookmarkKind string

const (
	BookmarkForm      BookmarkKind = "form"
	BookmarkApproval  BookmarkKind = "approval"
	BookmarkAPIReturn BookmarkKind = "api_return"
	BookmarkTimer     BookmarkKind = "timer"
)

// Bookmark records a suspension point awaiting external input.
type Bookmark struct {
	BookmarkID           uuid.UUID       `json:"bookmark_id"`
	WorkflowID           uuid.UUID       `json:"workflow_id"`
	StepID               string          `json:"step_id"`
	Kind                 BookmarkKind    `json:"kind"`
	ExpectedPayloadShape json.RawMessage `json:"expected_payload_shape,omitempty"`
	Active               bool            `json:"active"`
	ConsumedAt           *time.Time      `json:"consumed_at,omitempty"`
	ExpiresAt            *time.Time      `json:"expires_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Clone returns a deep copy of the bookmark.
func (b Bookmark) Clone() Bookmark {
	clone := b
	if b.ExpectedPayloadShape != nil {
		clone.ExpectedPayloadShape = append(json.RawMessage(nil), b.ExpectedPayloadShape...)
	}
	if b.ConsumedAt != nil {
		t := *b.ConsumedAt
		clone.ConsumedAt = &t
	}
	if b.ExpiresAt != nil {
		t := *b.ExpiresAt
		clone.ExpiresAt = &t
	}
	return clone
}
