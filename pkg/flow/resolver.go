// Package flow implements the flow resolver (C6): given a source type and
// routing key extracted from a webhook, loads the Flow plus its active
// inputs and outputs, or falls through to the legacy single-config path.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
	"github.com/codeready-toolchain/discubot/pkg/store"
)

// Resolver resolves a (sourceType, routingKey) pair to a ResolvedRoute.
type Resolver struct {
	flows   *store.FlowRepository
	configs *store.ConfigRepository
}

// NewResolver constructs a Resolver.
func NewResolver(flows *store.FlowRepository, configs *store.ConfigRepository) *Resolver {
	return &Resolver{flows: flows, configs: configs}
}

// Resolve implements §4.1's algorithm. routingKey is the chat workspace id
// for chat sources, the email slug for email sources.
func (r *Resolver) Resolve(ctx context.Context, sourceType domain.SourceType, routingKey string) (store.ResolvedRoute, error) {
	inputs, err := r.matchInputs(ctx, sourceType, routingKey)
	if err != nil {
		return store.ResolvedRoute{}, fmt.Errorf("match flow inputs: %w", err)
	}

	if len(inputs) > 0 {
		matched := inputs[0]
		if len(inputs) > 1 {
			slog.Warn("multiple active flow inputs matched routing key — picking oldest",
				"source_type", sourceType, "routing_key", routingKey, "count", len(inputs))
		}

		f, err := r.flows.GetFlow(ctx, matched.FlowID)
		if err != nil {
			return store.ResolvedRoute{}, fmt.Errorf("load flow %s: %w", matched.FlowID, err)
		}
		if !f.Active {
			return store.ResolvedRoute{}, fmt.Errorf("flow %s is inactive: %w", f.ID, pipelineerr.ErrFlowNotFound)
		}

		flowInputs, err := r.flows.ListActiveInputs(ctx, f.ID)
		if err != nil {
			return store.ResolvedRoute{}, fmt.Errorf("list flow inputs: %w", err)
		}
		outputs, err := r.flows.ListActiveOutputs(ctx, f.ID)
		if err != nil {
			return store.ResolvedRoute{}, fmt.Errorf("list flow outputs: %w", err)
		}

		return store.ResolvedRoute{
			Flow: &store.FlowWithRelations{
				Flow:         f,
				Inputs:       flowInputs,
				Outputs:      outputs,
				MatchedInput: matched,
			},
		}, nil
	}

	cfg, ok, err := r.configs.FindActive(ctx, sourceType, routingKey)
	if err != nil {
		return store.ResolvedRoute{}, fmt.Errorf("find legacy config: %w", err)
	}
	if !ok {
		return store.ResolvedRoute{}, fmt.Errorf("no flow or legacy config for %s/%s: %w",
			sourceType, routingKey, pipelineerr.ErrFlowNotFound)
	}
	return store.ResolvedRoute{Legacy: &cfg}, nil
}

// ResolveForRetry reconstructs a ResolvedRoute directly from the flowId and
// inputId a Discussion already recorded on its first run, instead of
// re-deriving them from a routing key (§4.7, §8 scenario 5). An empty flowID
// means the original run fell through to the legacy config path.
func (r *Resolver) ResolveForRetry(ctx context.Context, flowID, inputID string) (store.ResolvedRoute, error) {
	if flowID == "" {
		cfg, err := r.configs.Get(ctx, inputID)
		if err != nil {
			return store.ResolvedRoute{}, fmt.Errorf("load legacy config %s: %w", inputID, err)
		}
		return store.ResolvedRoute{Legacy: &cfg}, nil
	}

	f, err := r.flows.GetFlow(ctx, flowID)
	if err != nil {
		return store.ResolvedRoute{}, fmt.Errorf("load flow %s: %w", flowID, err)
	}
	matched, err := r.flows.GetInput(ctx, inputID)
	if err != nil {
		return store.ResolvedRoute{}, fmt.Errorf("load flow input %s: %w", inputID, err)
	}
	flowInputs, err := r.flows.ListActiveInputs(ctx, f.ID)
	if err != nil {
		return store.ResolvedRoute{}, fmt.Errorf("list flow inputs: %w", err)
	}
	outputs, err := r.flows.ListActiveOutputs(ctx, f.ID)
	if err != nil {
		return store.ResolvedRoute{}, fmt.Errorf("list flow outputs: %w", err)
	}

	return store.ResolvedRoute{
		Flow: &store.FlowWithRelations{
			Flow:         f,
			Inputs:       flowInputs,
			Outputs:      outputs,
			MatchedInput: matched,
		},
	}, nil
}

func (r *Resolver) matchInputs(ctx context.Context, sourceType domain.SourceType, routingKey string) ([]domain.FlowInput, error) {
	switch sourceType {
	case domain.SourceChat:
		return r.flows.FindActiveChatInputs(ctx, routingKey)
	case domain.SourceDesignEmail:
		return r.flows.FindActiveEmailInputs(ctx, routingKey)
	default:
		return nil, errors.New("unknown source type " + string(sourceType))
	}
}
