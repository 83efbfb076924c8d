package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// UserMappingRepository persists user_mappings.
type UserMappingRepository struct {
	pool *pgxpool.Pool
}

// NewUserMappingRepository constructs a UserMappingRepository.
func NewUserMappingRepository(pool *pgxpool.Pool) *UserMappingRepository {
	return &UserMappingRepository{pool: pool}
}

// ListActive loads every active mapping for a tenant/sourceType/workspace
// tuple — the whole table is loaded once per discussion per §4.4, never
// filtered row-by-row during the pipeline run.
func (r *UserMappingRepository) ListActive(ctx context.Context, tenantID string, sourceType domain.SourceType, workspaceID string) ([]domain.UserMapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, source_type, source_workspace_id, source_user_id,
		       source_user_name, dest_user_id, dest_user_name, active,
		       created_at, updated_at, created_by, updated_by
		FROM user_mappings
		WHERE active AND tenant_id = $1 AND source_type = $2 AND source_workspace_id = $3`,
		tenantID, sourceType, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query user mappings: %w", err)
	}
	defer rows.Close()

	var out []domain.UserMapping
	for rows.Next() {
		var m domain.UserMapping
		var sourceUserName, destUserName *string
		if err := rows.Scan(&m.ID, &m.TenantID, &m.SourceType, &m.SourceWorkspaceID, &m.SourceUserID,
			&sourceUserName, &m.DestUserID, &destUserName, &m.Active,
			&m.CreatedAt, &m.UpdatedAt, &m.CreatedBy, &m.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scan user mapping: %w", err)
		}
		if sourceUserName != nil {
			m.SourceUserName = *sourceUserName
		}
		if destUserName != nil {
			m.DestUserName = *destUserName
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
