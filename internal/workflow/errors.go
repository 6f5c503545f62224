package workflow

import "errors"

// ErrorKind is the stable, caller-facing classification of an engine
// failure. The API collaborator maps kinds to transport-specific codes
// (HTTP status, GraphQL error extensions); kinds themselves never change
// shape across releases.
type ErrorKind string

const (
	KindValidation         ErrorKind = "Validation"
	KindInvalidTransition  ErrorKind = "InvalidTransition"
	KindNotFound           ErrorKind = "NotFound"
	KindTenantAccessDenied ErrorKind = "TenantAccessDenied"
	KindPermissionDenied   ErrorKind = "PermissionDenied"
	KindStaleWrite         ErrorKind = "StaleWrite"
	KindConflictingWrite    ErrorKind = "ConflictingWrite"
	KindConflict           ErrorKind = "Conflict"
	KindBookmarkConsumed   ErrorKind = "BookmarkAlreadyConsumed"
	KindBookmarkExpired    ErrorKind = "BookmarkExpired"
	KindExternalTransient  ErrorKind = "ExternalFailureTransient"
	KindExternalPermanent  ErrorKind = "ExternalFailurePermanent"
	KindTimeout            ErrorKind = "Timeout"
	KindIntegrityError     ErrorKind = "IntegrityError"
)

// Sentinel errors for errors.Is-style matching by callers that only need
// the class, not the full OperationError context.
var (
	ErrNotFound            = errors.New("workflow: not found")
	ErrTenantAccessDenied  = errors.New("workflow: tenant access denied")
	ErrPermissionDenied    = errors.New("workflow: permission denied")
	ErrInvalidTransition   = errors.New("workflow: invalid transition")
	ErrStaleWrite          = errors.New("workflow: stale write")
	ErrConflictingWrite    = errors.New("workflow: conflicting write")
	ErrBookmarkConsumed    = errors.New("workflow: bookmark already consumed")
	ErrBookmarkExpired     = errors.New("workflow: bookmark expired")
	ErrIntegrityError      = errors.New("workflow: integrity error")
	ErrTemplateNotActive   = errors.New("workflow: template is not active for this market role")
	ErrTenantNotActive     = errors.New("workflow: tenant is not active")
)
