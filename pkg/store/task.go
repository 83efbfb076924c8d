package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// TaskRepository persists tasks (TaskRecord rows).
type TaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository constructs a TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// CreateBatch inserts every TaskRecord produced by stage 5 in one pass
// (§9 ordering: (a) external writes, (b) these rows, (c) the Discussion
// update). Invariant T-1 is enforced by the dest_page_id unique index.
func (r *TaskRepository) CreateBatch(ctx context.Context, records []domain.TaskRecord) error {
	for _, t := range records {
		meta, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("marshal task metadata: %w", err)
		}
		_, err = r.pool.Exec(ctx, `
			INSERT INTO tasks
				(id, tenant_id, discussion_id, job_id, dest_page_id, dest_page_url,
				 title, description, priority, assignee, source_url,
				 is_multi_task_child, task_index, metadata, created_by, updated_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''),NULLIF($10,''),$11,$12,$13,$14,$15,$16)`,
			t.ID, t.TenantID, t.DiscussionID, t.JobID, t.DestPageID, t.DestPageURL,
			t.Title, t.Description, t.Priority, t.Assignee, t.SourceURL,
			t.IsMultiTaskChild, t.TaskIndex, meta, t.CreatedBy, t.UpdatedBy)
		if err != nil {
			return fmt.Errorf("insert task record %s: %w", t.DestPageID, err)
		}
	}
	return nil
}

// FindByDestPageID reverse-looks-up a TaskRecord from a knowledge-base page
// id — the contract the (out-of-scope) completion-callback webhook would
// use to resolve "page X marked Done" back to a discussion (§6).
func (r *TaskRepository) FindByDestPageID(ctx context.Context, destPageID string) (domain.TaskRecord, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, discussion_id, job_id, dest_page_id, dest_page_url,
		       title, COALESCE(description, ''), COALESCE(priority, ''), COALESCE(assignee, ''),
		       source_url, is_multi_task_child, COALESCE(task_index, 0), metadata,
		       created_at, updated_at, created_by, updated_by
		FROM tasks WHERE dest_page_id = $1`, destPageID)

	var t domain.TaskRecord
	var meta []byte
	err := row.Scan(&t.ID, &t.TenantID, &t.DiscussionID, &t.JobID, &t.DestPageID, &t.DestPageURL,
		&t.Title, &t.Description, &t.Priority, &t.Assignee,
		&t.SourceURL, &t.IsMultiTaskChild, &t.TaskIndex, &meta,
		&t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, &t.UpdatedBy)
	if err != nil {
		if isNoRows(err) {
			return domain.TaskRecord{}, false, nil
		}
		return domain.TaskRecord{}, false, fmt.Errorf("scan task record: %w", err)
	}
	if err := json.Unmarshal(meta, &t.Metadata); err != nil {
		return domain.TaskRecord{}, false, fmt.Errorf("unmarshal task metadata: %w", err)
	}
	return t, true, nil
}
