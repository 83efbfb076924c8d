package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// JobRepository persists jobs. Invariant J-1 (a retry creates a new row) is
// enforced by never exposing an "increment attempts" mutation — only Create
// and the narrow per-stage update methods below exist.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository constructs a JobRepository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Create inserts a new Job row (stage 2). Always attempts=0 — the retry
// chain is reconstructed from row count, not from a mutated counter (§9).
func (r *JobRepository) Create(ctx context.Context, j domain.Job) error {
	meta, err := json.Marshal(j.Metadata)
	if err != nil {
		return fmt.Errorf("marshal job metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO jobs
			(id, tenant_id, discussion_id, input_id, flow_id, status, stage,
			 attempts, max_attempts, started_at, task_ids, metadata, created_by, updated_by)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,$10,'[]',$11,$12,$13)`,
		j.ID, j.TenantID, j.DiscussionID, j.InputID, j.FlowID, j.Status, j.Stage,
		j.Attempts, j.MaxAttempts, j.StartedAt, meta, j.CreatedBy, j.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// AdvanceStage moves a non-terminal Job to the next stage, keeping status in
// sync (processing throughout stages 1-5, notification included).
func (r *JobRepository) AdvanceStage(ctx context.Context, id string, stage domain.Stage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET stage = $2, status = 'processing', updated_at = now()
		WHERE id = $1 AND completed_at IS NULL`, id, stage)
	if err != nil {
		return fmt.Errorf("advance job stage: %w", err)
	}
	return nil
}

// Complete finalizes a Job as completed (J-2: terminal once completed_at is set).
func (r *JobRepository) Complete(ctx context.Context, id string, taskIDs []string, processingTimeMs int64) error {
	raw, err := json.Marshal(taskIDs)
	if err != nil {
		return fmt.Errorf("marshal task_ids: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'completed', task_ids = $2, processing_time_ms = $3,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND completed_at IS NULL`, id, raw, processingTimeMs)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail finalizes a Job as failed, capturing error/stack (J-2).
func (r *JobRepository) Fail(ctx context.Context, id, errMsg, errStack string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'failed', error = $2, error_stack = $3,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND completed_at IS NULL`, id, errMsg, errStack)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// ListByDiscussion loads every Job row for a discussion, oldest first — used
// to reconstruct the retry chain (§9: "attempt N of M" from row count).
func (r *JobRepository) ListByDiscussion(ctx context.Context, discussionID string) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, discussion_id, input_id, COALESCE(flow_id, ''), status, stage,
		       attempts, max_attempts, COALESCE(error, ''), COALESCE(error_stack, ''),
		       started_at, completed_at, COALESCE(processing_time_ms, 0), task_ids, metadata,
		       created_at, updated_at, created_by, updated_by
		FROM jobs WHERE discussion_id = $1 ORDER BY created_at ASC`, discussionID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by discussion: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var j domain.Job
		var taskIDs, meta []byte
		if err := rows.Scan(&j.ID, &j.TenantID, &j.DiscussionID, &j.InputID, &j.FlowID, &j.Status, &j.Stage,
			&j.Attempts, &j.MaxAttempts, &j.Error, &j.ErrorStack,
			&j.StartedAt, &j.CompletedAt, &j.ProcessingTimeMs, &taskIDs, &meta,
			&j.CreatedAt, &j.UpdatedAt, &j.CreatedBy, &j.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if err := json.Unmarshal(taskIDs, &j.TaskIDs); err != nil {
			return nil, fmt.Errorf("unmarshal task_ids: %w", err)
		}
		if err := json.Unmarshal(meta, &j.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal job metadata: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
