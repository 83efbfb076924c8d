// Package store provides hand-written pgx repositories over the seven
// pipeline tables (flows, flow_inputs, flow_outputs, user_mappings,
// discussions, jobs, tasks) plus the legacy configs table.
package store

import (
	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// FlowWithRelations is the flow resolver's full result: the matched flow,
// all its active inputs and outputs, and which input matched the routing
// key.
type FlowWithRelations struct {
	Flow         domain.Flow
	Inputs       []domain.FlowInput
	Outputs      []domain.FlowOutput
	MatchedInput domain.FlowInput
}

// ResolvedRoute is the discriminated union the flow resolver returns so the
// orchestrator never forks on routing mode (§9: "expose a single
// discriminated result to the orchestrator; do not fork the pipeline").
// Exactly one of Flow or Legacy is non-nil.
type ResolvedRoute struct {
	Flow   *FlowWithRelations
	Legacy *domain.LegacyConfig
}

// IsLegacy reports whether this route resolved through the legacy configs
// fallback rather than a Flow.
func (r ResolvedRoute) IsLegacy() bool { return r.Legacy != nil }
