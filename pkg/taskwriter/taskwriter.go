// Package taskwriter implements the task writer (C3): it creates task
// records in the external knowledge-base API, paced to the vendor's rate
// limit with golang.org/x/time/rate the way goadesign-goa-ai's
// features/model/middleware paces provider calls.
package taskwriter

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/retry"
	"github.com/codeready-toolchain/discubot/pkg/usermap"
)

const minGap = 200 * time.Millisecond

// KBClient is the subset of the knowledge-base HTTP client the writer needs.
type KBClient interface {
	CreatePage(ctx context.Context, cfg domain.KBOutputConfig, payload Payload) (domain.TaskRef, error)
}

// Writer creates tasks for a discussion's detected-task batch, serially,
// spaced by at least minGap, failing fast on the first non-retryable error.
type Writer struct {
	client  KBClient
	limiter *rate.Limiter
	policy  retry.Policy
}

// New builds a Writer with its own pacing limiter. The limiter is shared by
// every CreateBatch call on this Writer, so the ≥200ms gap holds across all
// writes made through it, concurrent batches included (§5).
func New(client KBClient) *Writer {
	return &Writer{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(minGap), 1),
		policy:  retry.TaskWrite(),
	}
}

// Thread carries the fields CreateBatch needs to render the page body.
type Thread struct {
	Root         domain.Message
	AllMessages  []domain.Message
	SourceURL    string
	SourceType   domain.SourceType
	Participants []string
}

// CreateBatch writes one task per element of tasks against cfg, serially,
// each call spaced by the limiter. The first non-retryable error aborts the
// remaining batch; refs already written are returned alongside the error so
// the caller can persist the partial success (§4.3 fail-fast).
func (w *Writer) CreateBatch(ctx context.Context, tasks []domain.Task, thread Thread, summary domain.Summary, cfg domain.KBOutputConfig, mentions *usermap.Snapshot) ([]domain.TaskRef, error) {
	refs := make([]domain.TaskRef, 0, len(tasks))

	for i, task := range tasks {
		if err := w.limiter.Wait(ctx); err != nil {
			return refs, fmt.Errorf("rate limiter wait: %w", err)
		}

		payload := buildPayload(task, thread, summary, cfg.FieldMapping, mentions, i, len(tasks) > 1)

		var ref domain.TaskRef
		err := retry.Do(ctx, w.policy, "taskwriter.createPage", func(callCtx context.Context) error {
			r, callErr := w.client.CreatePage(callCtx, cfg, payload)
			if callErr != nil {
				return callErr
			}
			ref = r
			return nil
		})
		if err != nil {
			return refs, fmt.Errorf("task %d/%d: %w", i+1, len(tasks), err)
		}
		refs = append(refs, ref)
	}

	return refs, nil
}
