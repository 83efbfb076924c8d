// Package retry provides a bounded exponential-backoff wrapper with a
// per-call timeout, shared by every outbound call in the pipeline (C1).
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryableError is implemented by pkg/pipelineerr's RateLimitError and
// TransientError (re-exported by pkg/pipeline). Classifying by interface
// keeps this package free of any import of the error taxonomy; its callers
// are the analyzer and the task writer.
type retryableError interface {
	Retryable() bool
}

func isRetryable(err error) bool {
	for err != nil {
		if r, ok := err.(retryableError); ok {
			return r.Retryable()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Policy configures a Do call.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
	// Multiplier is the exponential growth factor between attempts.
	Multiplier float64
	// Timeout bounds each individual attempt, not the whole Do call.
	Timeout time.Duration
}

// Default matches §4.5/§5: three attempts with doubling backoff from 1s
// capped at 10s (so waits of 1s and 2s), bounded by the analyzer's 30s
// per-call timeout.
func Default() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		Timeout:         30 * time.Second,
	}
}

// TaskWrite matches §5's 15s task-write timeout, keeping the same backoff
// schedule as Default.
func TaskWrite() Policy {
	p := Default()
	p.Timeout = 15 * time.Second
	return p
}

// Do runs fn, retrying on retryable errors per Policy. fn is expected to
// tag its errors using the pipeline error-kind constructors; Do continues
// the backoff loop only for errors whose chain carries a Retryable() method
// returning true.
// A non-retryable error returns immediately.
func Do(ctx context.Context, policy Policy, label string, fn func(ctx context.Context) error) error {
	logger := slog.With("retry_target", label)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.Multiplier = policy.Multiplier
	b.RandomizationFactor = 0

	bounded := backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))
	withCtx := backoff.WithContext(bounded, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		callCtx := ctx
		var cancel context.CancelFunc
		if policy.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
			defer cancel()
		}

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		logger.Warn("retrying after transient failure", "attempt", attempt, "error", err)
		return err
	}

	if err := backoff.Retry(operation, withCtx); err != nil {
		return unwrapPermanent(err)
	}
	return nil
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
