package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// ErrorType categorizes client failures. Connectivity trouble with a single
// relay is not represented here at all: the pool degrades silently and only
// total failure surfaces as an error.
type ErrorType string

const (
	ErrorTypeSigning    ErrorType = "signing"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeInternal   ErrorType = "internal"
)

// ErrorSeverity is carried into log fields by callers.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// Sentinel errors callers can test with errors.Is.
var (
	// ErrNoIdentity: an operation requiring a signing identity was invoked
	// without one configured.
	ErrNoIdentity = errors.New("no signing identity configured")

	// ErrSigningFailed: the signer declined or errored. Raised before any
	// network traffic.
	ErrSigningFailed = errors.New("event signing failed")

	// ErrPublishNotAcknowledged: no relay acknowledged the event within the
	// publish window. The event is not retried automatically.
	ErrPublishNotAcknowledged = errors.New("no relay acknowledged publish")

	// ErrAllRelaysFailed: every configured relay was unreachable for an
	// operation that needs at least one connection.
	ErrAllRelaysFailed = errors.New("all relays unreachable")

	// ErrNoRelays: the relay set is empty.
	ErrNoRelays = errors.New("no relays configured")

	// ErrNotFound: a slot or cached entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSubscriptionClosed: an operation on a canceled subscription.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// ClientError is a structured error carrying enough context to diagnose a
// failure without exposing key material.
type ClientError struct {
	Type      ErrorType
	Code      string
	Op        string // e.g. "pool.publish", "state.profile"
	Relay     string // relay URL when the failure is relay-scoped
	Kind      int    // event kind when relevant, -1 otherwise
	Message   string
	Severity  ErrorSeverity
	Timestamp time.Time
	Cause     error
}

func (e *ClientError) Error() string {
	switch {
	case e.Relay != "" && e.Cause != nil:
		return fmt.Sprintf("[%s:%s] %s: %s (relay %s): %v", e.Type, e.Code, e.Op, e.Message, e.Relay, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Type, e.Code, e.Op, e.Message, e.Cause)
	default:
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Op, e.Message)
	}
}

func (e *ClientError) Unwrap() error { return e.Cause }

// New creates a ClientError with default severity.
func New(errorType ErrorType, code, op, message string) *ClientError {
	return &ClientError{
		Type:      errorType,
		Code:      code,
		Op:        op,
		Kind:      -1,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
	}
}

// Wrap attaches an underlying cause.
func Wrap(err error, errorType ErrorType, code, op, message string) *ClientError {
	ce := New(errorType, code, op, message)
	ce.Cause = err
	return ce
}

func (e *ClientError) WithSeverity(s ErrorSeverity) *ClientError {
	e.Severity = s
	return e
}

func (e *ClientError) WithRelay(url string) *ClientError {
	e.Relay = url
	return e
}

func (e *ClientError) WithKind(kind int) *ClientError {
	e.Kind = kind
	return e
}

// SigningError wraps a signer failure. Operations abort before any network
// call when signing fails.
func SigningError(op string, cause error) *ClientError {
	ce := Wrap(cause, ErrorTypeSigning, "SIGNING_FAILED", op, "signer rejected event")
	if ce.Cause == nil {
		ce.Cause = ErrSigningFailed
	}
	ce.Severity = SeverityMedium
	return ce
}

// PublishError reports that zero relays acknowledged within the window.
func PublishError(op string, kind, attempted int) *ClientError {
	ce := Wrap(ErrPublishNotAcknowledged, ErrorTypeNetwork, "PUBLISH_NOT_ACKED", op,
		fmt.Sprintf("no acknowledgment from %d relays", attempted))
	ce.Kind = kind
	return ce
}

// WebSocketError classifies a transport failure for one relay connection.
func WebSocketError(op, relay string, cause error) *ClientError {
	var code string
	severity := SeverityMedium
	switch {
	case websocket.IsCloseError(cause, websocket.CloseNormalClosure):
		code = "WS_NORMAL_CLOSURE"
		severity = SeverityLow
	case websocket.IsCloseError(cause, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		code = "WS_ABNORMAL_CLOSURE"
	case websocket.IsUnexpectedCloseError(cause, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		code = "WS_UNEXPECTED_CLOSURE"
	default:
		code = "WS_ERROR"
	}
	return Wrap(cause, ErrorTypeNetwork, code, op, "websocket failure").
		WithRelay(relay).
		WithSeverity(severity)
}

// ValidationError reports a malformed outgoing event or filter.
func ValidationError(op, reason string) *ClientError {
	return New(ErrorTypeValidation, "VALIDATION_FAILED", op, reason).
		WithSeverity(SeverityLow)
}

// StorageError wraps a local slot-store failure.
func StorageError(op, slot string, cause error) *ClientError {
	return Wrap(cause, ErrorTypeStorage, "STORAGE_FAILED", op,
		fmt.Sprintf("slot %q", slot)).WithSeverity(SeverityHigh)
}
