// Package pipelineerr is the pipeline's error-kind taxonomy (§7): the
// sentinel and struct error types every stage, adapter, and outbound client
// tags its failures with. It is a leaf package on purpose — the flow
// resolver, source adapters, and the orchestrator in pkg/pipeline all need
// to construct or inspect these without forcing an import cycle back
// through pkg/pipeline.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the stage-independent fault kinds.
var (
	// ErrFlowNotFound is raised by the flow resolver when no active input
	// matches a routing key and the legacy fallback also misses.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrConfigNotFound names a legacy-config miss. The flow resolver reports
	// a miss on both lookups as ErrFlowNotFound and does not return this
	// error; pkg/httpapi maps either one to 404.
	ErrConfigNotFound = errors.New("legacy config not found")

	// ErrAuth is raised by an adapter or outbound client on 401/403.
	ErrAuth = errors.New("authentication failed")
)

// ValidationError wraps a stage-1 field validation failure. Non-retryable.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

// NewValidationError builds a *ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ParseError wraps an adapter.parseIncoming failure. Non-retryable.
type ParseError struct {
	Source  string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %s", e.Source, e.Message)
}

// NewParseError builds a *ParseError.
func NewParseError(source, message string) error {
	return &ParseError{Source: source, Message: message}
}

// AnalysisError wraps a malformed-JSON or schema failure from the LLM
// analyzer. Retryable once inside C2, fails the job on the second miss.
type AnalysisError struct {
	Message string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis error: %s", e.Message)
}

// NewAnalysisError builds an *AnalysisError.
func NewAnalysisError(message string) error {
	return &AnalysisError{Message: message}
}

// RateLimitError wraps a 429 from any outbound call. Retryable with backoff
// inside the retry helper (C1).
type RateLimitError struct {
	Endpoint   string
	RetryAfter string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited calling %s", e.Endpoint)
}

// Retryable satisfies pkg/retry's classification interface.
func (e *RateLimitError) Retryable() bool { return true }

// NewRateLimitError builds a *RateLimitError.
func NewRateLimitError(endpoint, retryAfter string) error {
	return &RateLimitError{Endpoint: endpoint, RetryAfter: retryAfter}
}

// TransientError wraps a 5xx or timeout from any outbound call. Retryable
// inside the retry helper (C1).
type TransientError struct {
	Endpoint string
	Cause    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure calling %s: %v", e.Endpoint, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// Retryable satisfies pkg/retry's classification interface.
func (e *TransientError) Retryable() bool { return true }

// NewTransientError builds a *TransientError.
func NewTransientError(endpoint string, cause error) error {
	return &TransientError{Endpoint: endpoint, Cause: cause}
}

// PartialOutputFailure records that one of several fan-out writes in stage 5
// failed; sibling outputs still proceed. Not itself a job-failing error.
// The orchestrator does not construct this type and does not record
// per-output failures on the Job: it wraps each with the output name and
// fails the Job only when no TaskRecord was written.
type PartialOutputFailure struct {
	OutputName string
	Cause      error
}

func (e *PartialOutputFailure) Error() string {
	return fmt.Sprintf("output %q failed: %v", e.OutputName, e.Cause)
}

func (e *PartialOutputFailure) Unwrap() error { return e.Cause }

// IsRetryable reports whether an error kind should be retried by C1 rather
// than failing the job outright.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var tr *TransientError
	if errors.As(err, &tr) {
		return true
	}
	return false
}
