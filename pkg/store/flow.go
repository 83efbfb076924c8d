package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// FlowRepository persists flows, flow_inputs, and flow_outputs.
type FlowRepository struct {
	pool *pgxpool.Pool
}

// NewFlowRepository constructs a FlowRepository.
func NewFlowRepository(pool *pgxpool.Pool) *FlowRepository {
	return &FlowRepository{pool: pool}
}

// FindActiveChatInputs returns active chat FlowInputs whose
// sourceMetadata.workspaceId matches workspaceID, ordered by createdAt ASC,
// capped at 2 rows — enough to both pick deterministically and detect the
// ambiguous-match data-integrity case in one round trip (§4.1).
func (r *FlowRepository) FindActiveChatInputs(ctx context.Context, workspaceID string) ([]domain.FlowInput, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, flow_id, source_type, api_token, source_metadata, email_slug,
		       active, created_at, updated_at, created_by, updated_by
		FROM flow_inputs
		WHERE active AND source_type = 'chat' AND source_metadata->>'workspaceId' = $1
		ORDER BY created_at ASC
		LIMIT 2`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query chat inputs: %w", err)
	}
	defer rows.Close()
	return scanFlowInputs(rows)
}

// FindActiveEmailInputs returns active design-email FlowInputs whose
// emailSlug matches, same ordering/cap rationale as FindActiveChatInputs.
func (r *FlowRepository) FindActiveEmailInputs(ctx context.Context, emailSlug string) ([]domain.FlowInput, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, flow_id, source_type, api_token, source_metadata, email_slug,
		       active, created_at, updated_at, created_by, updated_by
		FROM flow_inputs
		WHERE active AND source_type = 'design-email' AND email_slug = $1
		ORDER BY created_at ASC
		LIMIT 2`, emailSlug)
	if err != nil {
		return nil, fmt.Errorf("query email inputs: %w", err)
	}
	defer rows.Close()
	return scanFlowInputs(rows)
}

// GetFlow loads one Flow by id.
func (r *FlowRepository) GetFlow(ctx context.Context, id string) (domain.Flow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, description, available_domains, ai_enabled,
		       summary_prompt_template, task_prompt_template, active,
		       created_at, updated_at, created_by, updated_by
		FROM flows WHERE id = $1`, id)
	return scanFlow(row)
}

// GetInput loads one FlowInput by id, regardless of active state — used to
// reconstruct the route a Discussion originally matched when retrying (§4.7),
// rather than re-deriving it from a routing key.
func (r *FlowRepository) GetInput(ctx context.Context, id string) (domain.FlowInput, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, flow_id, source_type, api_token, source_metadata, email_slug,
		       active, created_at, updated_at, created_by, updated_by
		FROM flow_inputs WHERE id = $1`, id)
	return scanFlowInput(row)
}

// ListActiveInputs returns every active FlowInput bound to a flow.
func (r *FlowRepository) ListActiveInputs(ctx context.Context, flowID string) ([]domain.FlowInput, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, flow_id, source_type, api_token, source_metadata, email_slug,
		       active, created_at, updated_at, created_by, updated_by
		FROM flow_inputs WHERE flow_id = $1 AND active
		ORDER BY created_at ASC`, flowID)
	if err != nil {
		return nil, fmt.Errorf("list flow inputs: %w", err)
	}
	defer rows.Close()
	return scanFlowInputs(rows)
}

// ListActiveOutputs returns every active FlowOutput bound to a flow.
func (r *FlowRepository) ListActiveOutputs(ctx context.Context, flowID string) ([]domain.FlowOutput, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, flow_id, output_type, name, domain_filter, is_default,
		       output_config, active, created_at, updated_at, created_by, updated_by
		FROM flow_outputs WHERE flow_id = $1 AND active
		ORDER BY created_at ASC`, flowID)
	if err != nil {
		return nil, fmt.Errorf("list flow outputs: %w", err)
	}
	defer rows.Close()

	var out []domain.FlowOutput
	for rows.Next() {
		o, err := scanFlowOutput(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanFlowInputs(rows pgx.Rows) ([]domain.FlowInput, error) {
	var out []domain.FlowInput
	for rows.Next() {
		fi, err := scanFlowInput(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	return out, rows.Err()
}

func scanFlowInput(row pgx.Row) (domain.FlowInput, error) {
	var fi domain.FlowInput
	var metaRaw []byte
	var emailSlug *string
	if err := row.Scan(&fi.ID, &fi.FlowID, &fi.SourceType, &fi.APIToken, &metaRaw, &emailSlug,
		&fi.Active, &fi.CreatedAt, &fi.UpdatedAt, &fi.CreatedBy, &fi.UpdatedBy); err != nil {
		return domain.FlowInput{}, fmt.Errorf("scan flow input: %w", err)
	}
	if emailSlug != nil {
		fi.EmailSlug = *emailSlug
	}
	if err := json.Unmarshal(metaRaw, &fi.SourceMetadata); err != nil {
		return domain.FlowInput{}, fmt.Errorf("unmarshal source_metadata: %w", err)
	}
	return fi, nil
}

func scanFlow(row pgx.Row) (domain.Flow, error) {
	var f domain.Flow
	var domainsRaw []byte
	var summaryTpl, taskTpl *string
	if err := row.Scan(&f.ID, &f.TenantID, &f.Name, &f.Description, &domainsRaw, &f.AIEnabled,
		&summaryTpl, &taskTpl, &f.Active, &f.CreatedAt, &f.UpdatedAt, &f.CreatedBy, &f.UpdatedBy); err != nil {
		return domain.Flow{}, fmt.Errorf("scan flow: %w", err)
	}
	if summaryTpl != nil {
		f.SummaryPromptTemplate = *summaryTpl
	}
	if taskTpl != nil {
		f.TaskPromptTemplate = *taskTpl
	}
	if err := json.Unmarshal(domainsRaw, &f.AvailableDomains); err != nil {
		return domain.Flow{}, fmt.Errorf("unmarshal available_domains: %w", err)
	}
	return f, nil
}

func scanFlowOutput(row pgx.Row) (domain.FlowOutput, error) {
	var o domain.FlowOutput
	var filterRaw, cfgRaw []byte
	if err := row.Scan(&o.ID, &o.FlowID, &o.OutputType, &o.Name, &filterRaw, &o.IsDefault,
		&cfgRaw, &o.Active, &o.CreatedAt, &o.UpdatedAt, &o.CreatedBy, &o.UpdatedBy); err != nil {
		return domain.FlowOutput{}, fmt.Errorf("scan flow output: %w", err)
	}
	if err := json.Unmarshal(filterRaw, &o.DomainFilter); err != nil {
		return domain.FlowOutput{}, fmt.Errorf("unmarshal domain_filter: %w", err)
	}
	if err := json.Unmarshal(cfgRaw, &o.OutputConfig); err != nil {
		return domain.FlowOutput{}, fmt.Errorf("unmarshal output_config: %w", err)
	}
	return o, nil
}
