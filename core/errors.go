package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a pipeline failure. The kind names double as the
// "error" field of the external error contract.
type ErrorKind string

const (
	ErrKindValidation    ErrorKind = "ValidationError"
	ErrKindTranscription ErrorKind = "TranscriptionFailure"
	ErrKindReasoning     ErrorKind = "ReasoningFailure"
	ErrKindSynthesis     ErrorKind = "SynthesisFailure"
	ErrKindPersistence   ErrorKind = "PersistenceFailure"
	ErrKindTimeout       ErrorKind = "TimeoutFailure"
	ErrKindInternal      ErrorKind = "InternalError"
)

// PipelineError is a classified failure surfaced by the orchestrator.
// Message is user-facing; Err carries the underlying cause for logs.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps cause with a failure kind and a user-facing message.
func NewPipelineError(kind ErrorKind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: cause}
}

// KindOf extracts the failure kind from err, defaulting to InternalError.
// A stage failure whose root cause is an attempt deadline is reported as a
// timeout so the shaper can map it to 504.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return ErrKindInternal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return pe.Kind
}

// MessageOf extracts the user-facing message from err.
func MessageOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "Internal server error"
}

// StatusCode maps a failure kind to its HTTP status. The mapping is total:
// every kind yields exactly one code, and unknown kinds fall through to 500.
func (k ErrorKind) StatusCode() int {
	switch k {
	case ErrKindValidation:
		return http.StatusBadRequest
	case ErrKindTimeout:
		return http.StatusGatewayTimeout
	case ErrKindTranscription:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
