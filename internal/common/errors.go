package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so callers can distinguish
// recoverable from fatal outcomes without inspecting messages.
type ErrorKind string

const (
	// KindTransient covers network failures, timeouts and provider 5xx.
	// Retried by the retry policy, surfaced only after exhaustion.
	KindTransient ErrorKind = "TRANSIENT_PROVIDER"
	// KindMalformedResponse means no JSON object could be recovered from the
	// model output, even after repair. The receipt is rejected.
	KindMalformedResponse ErrorKind = "MALFORMED_RESPONSE"
	// KindUnparsableDate means the purchase date matched no known format.
	// Never silently defaulted; the receipt is rejected.
	KindUnparsableDate ErrorKind = "UNPARSABLE_DATE"
	// KindNumericConversion is recovered locally with a zero default; carried
	// as a warning on the receipt, not a terminal error.
	KindNumericConversion ErrorKind = "NUMERIC_CONVERSION"
	// KindValidation is bad caller input. Fatal, never retried.
	KindValidation ErrorKind = "VALIDATION"
)

// PipelineError is the typed failure crossing the pipeline boundary.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	// RawText carries truncated model output for MalformedResponse so the
	// failure is debuggable without re-invoking the LLM.
	RawText string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func NewPipelineError(kind ErrorKind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the error kind, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// HTTPStatusError reports a non-2xx provider response; the status code drives
// retry classification (5xx transient, 4xx fatal).
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.Status, e.Body)
}
