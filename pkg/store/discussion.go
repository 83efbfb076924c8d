package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// DiscussionRepository persists discussions.
type DiscussionRepository struct {
	pool *pgxpool.Pool
}

// NewDiscussionRepository constructs a DiscussionRepository.
func NewDiscussionRepository(pool *pgxpool.Pool) *DiscussionRepository {
	return &DiscussionRepository{pool: pool}
}

// Create inserts a new Discussion row (stage 2).
func (r *DiscussionRepository) Create(ctx context.Context, d domain.Discussion) error {
	participants, err := json.Marshal(d.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	raw, err := json.Marshal(d.RawPayload)
	if err != nil {
		return fmt.Errorf("marshal raw_payload: %w", err)
	}
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO discussions
			(id, tenant_id, source_type, source_thread_id, source_url, flow_id, input_id,
			 title, content, author_handle, participants, status, raw_payload, metadata,
			 created_by, updated_by)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		d.ID, d.TenantID, d.SourceType, d.SourceThreadID, d.SourceURL, d.FlowID, d.InputID,
		d.Title, d.Content, d.AuthorHandle, participants, d.Status, raw, meta,
		d.CreatedBy, d.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert discussion: %w", err)
	}
	return nil
}

// UpdateThread persists stage 3's rewrite of the thread-derived fields.
func (r *DiscussionRepository) UpdateThread(ctx context.Context, d domain.Discussion) error {
	participants, err := json.Marshal(d.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	threadData, err := json.Marshal(d.ThreadData)
	if err != nil {
		return fmt.Errorf("marshal thread_data: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE discussions
		SET author_handle = $2, participants = $3, thread_data = $4,
		    source_url = $5, source_thread_id = $6, updated_at = now()
		WHERE id = $1`,
		d.ID, d.AuthorHandle, participants, threadData, d.SourceURL, d.SourceThreadID)
	if err != nil {
		return fmt.Errorf("update discussion thread: %w", err)
	}
	return nil
}

// UpdateAnalysis persists stage 4's AI output and flips status to analyzed.
func (r *DiscussionRepository) UpdateAnalysis(ctx context.Context, id string, summary domain.Summary, keyPoints []string, tasks []domain.Task) error {
	summaryRaw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	keyPointsRaw, err := json.Marshal(keyPoints)
	if err != nil {
		return fmt.Errorf("marshal key points: %w", err)
	}
	tasksRaw, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE discussions
		SET ai_summary = $2, ai_key_points = $3, ai_tasks = $4,
		    status = 'analyzed', updated_at = now()
		WHERE id = $1`, id, summaryRaw, keyPointsRaw, tasksRaw)
	if err != nil {
		return fmt.Errorf("update discussion analysis: %w", err)
	}
	return nil
}

// UpdateTaskIDs persists stage 5(c): the single Discussion update with the
// collected TaskRecord ids, run after all external writes and all
// TaskRecord rows are already persisted (§9 ordering decision).
func (r *DiscussionRepository) UpdateTaskIDs(ctx context.Context, id string, taskRecordIDs []string) error {
	raw, err := json.Marshal(taskRecordIDs)
	if err != nil {
		return fmt.Errorf("marshal notion_task_ids: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE discussions SET notion_task_ids = $2, updated_at = now() WHERE id = $1`, id, raw)
	if err != nil {
		return fmt.Errorf("update discussion task ids: %w", err)
	}
	return nil
}

// Finalize sets the terminal status (completed or failed) and, on failure,
// stores the error in metadata.error.
func (r *DiscussionRepository) Finalize(ctx context.Context, id string, status domain.DiscussionStatus, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE discussions
		SET status = $2,
		    metadata = CASE WHEN $3 = '' THEN metadata ELSE jsonb_set(metadata, '{error}', to_jsonb($3::text)) END,
		    updated_at = now()
		WHERE id = $1`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("finalize discussion: %w", err)
	}
	return nil
}

// Get loads one Discussion by id.
func (r *DiscussionRepository) Get(ctx context.Context, id string) (domain.Discussion, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, source_type, source_thread_id, source_url,
		       COALESCE(flow_id, ''), input_id, title, content, author_handle,
		       participants, status, thread_data, ai_summary, ai_key_points, ai_tasks,
		       notion_task_ids, raw_payload, metadata,
		       created_at, updated_at, created_by, updated_by
		FROM discussions WHERE id = $1`, id)

	var d domain.Discussion
	var participants, threadData, summary, keyPoints, tasks, taskIDs, rawPayload, metadata []byte
	err := row.Scan(&d.ID, &d.TenantID, &d.SourceType, &d.SourceThreadID, &d.SourceURL,
		&d.FlowID, &d.InputID, &d.Title, &d.Content, &d.AuthorHandle,
		&participants, &d.Status, &threadData, &summary, &keyPoints, &tasks,
		&taskIDs, &rawPayload, &metadata,
		&d.CreatedAt, &d.UpdatedAt, &d.CreatedBy, &d.UpdatedBy)
	if err != nil {
		return domain.Discussion{}, fmt.Errorf("scan discussion: %w", err)
	}

	if err := json.Unmarshal(participants, &d.Participants); err != nil {
		return domain.Discussion{}, fmt.Errorf("unmarshal participants: %w", err)
	}
	if len(threadData) > 0 {
		if err := json.Unmarshal(threadData, &d.ThreadData); err != nil {
			return domain.Discussion{}, fmt.Errorf("unmarshal thread_data: %w", err)
		}
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &d.AISummary); err != nil {
			return domain.Discussion{}, fmt.Errorf("unmarshal ai_summary: %w", err)
		}
	}
	if len(keyPoints) > 0 {
		if err := json.Unmarshal(keyPoints, &d.AIKeyPoints); err != nil {
			return domain.Discussion{}, fmt.Errorf("unmarshal ai_key_points: %w", err)
		}
	}
	if len(tasks) > 0 {
		if err := json.Unmarshal(tasks, &d.AITasks); err != nil {
			return domain.Discussion{}, fmt.Errorf("unmarshal ai_tasks: %w", err)
		}
	}
	if err := json.Unmarshal(taskIDs, &d.NotionTaskIDs); err != nil {
		return domain.Discussion{}, fmt.Errorf("unmarshal notion_task_ids: %w", err)
	}
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &d.RawPayload); err != nil {
			return domain.Discussion{}, fmt.Errorf("unmarshal raw_payload: %w", err)
		}
	}
	if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
		return domain.Discussion{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return d, nil
}
