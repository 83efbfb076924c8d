package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// KnowledgeBaseAPIBase is the knowledge-base vendor's API root, used by
// TestConnection and not overridable. The task writer carries its own base
// URL (pkg/taskwriter's NewKBHTTPClientWithBaseURL).
const KnowledgeBaseAPIBase = "https://api.kb.example.com/v1"

// ConfigRepository persists the legacy single-input/single-output configs
// table the flow resolver falls through to when no Flow matches (§9).
type ConfigRepository struct {
	pool *pgxpool.Pool
}

// NewConfigRepository constructs a ConfigRepository.
func NewConfigRepository(pool *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

// FindActive returns the active legacy config for a source type + workspace
// id, or (domain.LegacyConfig{}, false, nil) if none matches.
func (r *ConfigRepository) FindActive(ctx context.Context, sourceType domain.SourceType, workspaceID string) (domain.LegacyConfig, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, source_type, workspace_id, api_token, source_metadata,
		       output_config, active, created_at, updated_at, created_by, updated_by
		FROM configs
		WHERE active AND source_type = $1 AND workspace_id = $2
		LIMIT 1`, sourceType, workspaceID)

	var c domain.LegacyConfig
	var metaRaw, cfgRaw []byte
	err := row.Scan(&c.ID, &c.TenantID, &c.SourceType, &c.WorkspaceID, &c.APIToken, &metaRaw,
		&cfgRaw, &c.Active, &c.CreatedAt, &c.UpdatedAt, &c.CreatedBy, &c.UpdatedBy)
	if err != nil {
		if isNoRows(err) {
			return domain.LegacyConfig{}, false, nil
		}
		return domain.LegacyConfig{}, false, fmt.Errorf("scan legacy config: %w", err)
	}
	if err := json.Unmarshal(metaRaw, &c.SourceMetadata); err != nil {
		return domain.LegacyConfig{}, false, fmt.Errorf("unmarshal source_metadata: %w", err)
	}
	if err := json.Unmarshal(cfgRaw, &c.OutputConfig); err != nil {
		return domain.LegacyConfig{}, false, fmt.Errorf("unmarshal output_config: %w", err)
	}
	return c, true, nil
}

// Get loads one legacy config by id, regardless of active state — used to
// reconstruct the route a Discussion originally matched when retrying (§4.7).
func (r *ConfigRepository) Get(ctx context.Context, id string) (domain.LegacyConfig, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, source_type, workspace_id, api_token, source_metadata,
		       output_config, active, created_at, updated_at, created_by, updated_by
		FROM configs WHERE id = $1`, id)

	var c domain.LegacyConfig
	var metaRaw, cfgRaw []byte
	err := row.Scan(&c.ID, &c.TenantID, &c.SourceType, &c.WorkspaceID, &c.APIToken, &metaRaw,
		&cfgRaw, &c.Active, &c.CreatedAt, &c.UpdatedAt, &c.CreatedBy, &c.UpdatedBy)
	if err != nil {
		return domain.LegacyConfig{}, fmt.Errorf("scan legacy config: %w", err)
	}
	if err := json.Unmarshal(metaRaw, &c.SourceMetadata); err != nil {
		return domain.LegacyConfig{}, fmt.Errorf("unmarshal source_metadata: %w", err)
	}
	if err := json.Unmarshal(cfgRaw, &c.OutputConfig); err != nil {
		return domain.LegacyConfig{}, fmt.Errorf("unmarshal output_config: %w", err)
	}
	return c, nil
}

// TestConnection verifies a knowledge-base output config's credentials and
// database id by calling GET /databases/{id} (§6). Used by the (out-of-scope)
// admin UI; a package-level function taking the output config, not a
// method on it (§9 expansion).
func TestConnection(ctx context.Context, cfg domain.KBOutputConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/databases/%s", KnowledgeBaseAPIBase, cfg.DatabaseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build connection test request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("connection test: %w", errAuthFailed)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("connection test: unexpected status %d", resp.StatusCode)
	}
	return nil
}

var errAuthFailed = fmt.Errorf("invalid credentials")
