package pipeline

import "github.com/codeready-toolchain/discubot/pkg/pipelineerr"

// The pipeline's error-kind taxonomy lives in pkg/pipelineerr so the flow
// resolver and source adapters can construct/inspect these error kinds
// without importing this package (which imports them back) — see
// pkg/pipelineerr's doc comment. These aliases keep the familiar
// pipeline.ValidationError-style spelling inside this package and its tests.
type (
	ValidationError      = pipelineerr.ValidationError
	ParseError           = pipelineerr.ParseError
	AnalysisError        = pipelineerr.AnalysisError
	RateLimitError       = pipelineerr.RateLimitError
	TransientError       = pipelineerr.TransientError
	PartialOutputFailure = pipelineerr.PartialOutputFailure
)

var (
	ErrFlowNotFound   = pipelineerr.ErrFlowNotFound
	ErrConfigNotFound = pipelineerr.ErrConfigNotFound
	ErrAuth           = pipelineerr.ErrAuth

	NewValidationError = pipelineerr.NewValidationError
	NewParseError      = pipelineerr.NewParseError
	NewAnalysisError   = pipelineerr.NewAnalysisError
	NewRateLimitError  = pipelineerr.NewRateLimitError
	NewTransientError  = pipelineerr.NewTransientError

	IsRetryable = pipelineerr.IsRetryable
)
