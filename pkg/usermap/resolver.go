// Package usermap implements the user-mapping resolver (C4): resolving
// upstream user identifiers to downstream mentions, and rewriting thread
// content to substitute them in before AI analysis.
package usermap

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/store"
)

// Entry is one resolved mapping: a downstream user id plus the display name
// used in the rewritten mention text.
type Entry struct {
	DestUserID  string
	DisplayName string
}

// Snapshot is the full active-mapping table for one tenant/workspace,
// loaded once per discussion and treated as immutable for that pipeline
// instance (§4.4, §5).
type Snapshot struct {
	byUserID map[string]Entry
	byHandle map[string]Entry
}

// NewEmptySnapshot returns a Snapshot with no resolved mappings: every
// lookup misses, so Rewrite leaves mentions in their unresolved form.
func NewEmptySnapshot() *Snapshot {
	return &Snapshot{byUserID: map[string]Entry{}, byHandle: map[string]Entry{}}
}

// ByUserID resolves an upstream sourceUserId (the id-based mention form
// chat sources use).
func (s *Snapshot) ByUserID(sourceUserID string) (Entry, bool) {
	e, ok := s.byUserID[sourceUserID]
	return e, ok
}

// ByHandle resolves an upstream sourceUserName (the handle-based mention
// form design-tool comments use, e.g. "@Name").
func (s *Snapshot) ByHandle(handle string) (Entry, bool) {
	e, ok := s.byHandle[handle]
	return e, ok
}

// Resolver loads Snapshots from the store.
type Resolver struct {
	mappings *store.UserMappingRepository
}

// NewResolver constructs a Resolver.
func NewResolver(mappings *store.UserMappingRepository) *Resolver {
	return &Resolver{mappings: mappings}
}

// Resolve loads every active mapping for (tenantId, sourceType,
// workspaceId) into an in-memory Snapshot. Workspace filtering is enforced
// by the underlying query — mappings from other workspaces of the same
// tenant never appear (§4.4).
func (r *Resolver) Resolve(ctx context.Context, tenantID string, sourceType domain.SourceType, workspaceID string) (*Snapshot, error) {
	rows, err := r.mappings.ListActive(ctx, tenantID, sourceType, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load user mappings: %w", err)
	}

	snap := &Snapshot{
		byUserID: make(map[string]Entry, len(rows)),
		byHandle: make(map[string]Entry, len(rows)),
	}
	for _, m := range rows {
		entry := Entry{DestUserID: m.DestUserID, DisplayName: displayName(m)}
		snap.byUserID[m.SourceUserID] = entry
		if m.SourceUserName != "" {
			snap.byHandle[m.SourceUserName] = entry
		}
	}
	return snap, nil
}

func displayName(m domain.UserMapping) string {
	if m.DestUserName != "" {
		return m.DestUserName
	}
	if m.SourceUserName != "" {
		return m.SourceUserName
	}
	return m.DestUserID
}
