// Package domain holds the core types shared by the console: messages,
// issues, wire frames, and the canonical error taxonomy.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a console error for propagation decisions.
type ErrorKind string

const (
	// ErrorKindTransport indicates a channel or request that failed to
	// complete (dial failure, dropped connection, non-2xx transport).
	ErrorKindTransport ErrorKind = "transport"

	// ErrorKindProtocol indicates a payload that was received but could
	// not be parsed. Inbound frames with this kind are logged and
	// dropped, never surfaced to the operator.
	ErrorKindProtocol ErrorKind = "protocol"

	// ErrorKindValidation indicates the caller supplied empty or
	// missing required input.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindBackendRejection indicates a well-formed response whose
	// status reported non-success.
	ErrorKindBackendRejection ErrorKind = "backend_rejection"
)

// ConsoleError is the canonical error carried across component
// boundaries. Callers branch on Kind to decide whether to retry,
// degrade, or surface the failure.
type ConsoleError struct {
	Kind    ErrorKind
	Op      string // operation that failed, e.g. "backend.history"
	Message string
	Err     error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *ConsoleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *ConsoleError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a failed request or channel operation.
func NewTransportError(op string, err error) *ConsoleError {
	return &ConsoleError{Kind: ErrorKindTransport, Op: op, Message: "transport failure", Err: err}
}

// NewProtocolError wraps an unparseable payload.
func NewProtocolError(op string, err error) *ConsoleError {
	return &ConsoleError{Kind: ErrorKindProtocol, Op: op, Message: "malformed payload", Err: err}
}

// NewValidationError reports missing or empty caller input.
func NewValidationError(op, message string) *ConsoleError {
	return &ConsoleError{Kind: ErrorKindValidation, Op: op, Message: message}
}

// NewBackendRejection reports a non-success status in an otherwise
// successful call.
func NewBackendRejection(op, status string) *ConsoleError {
	return &ConsoleError{Kind: ErrorKindBackendRejection, Op: op, Message: "backend reported " + status}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed.
// Errors outside the taxonomy report ErrorKindTransport, the
// fail-open default for read paths.
func KindOf(err error) ErrorKind {
	var ce *ConsoleError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrorKindTransport
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return KindOf(err) == ErrorKindValidation
}
