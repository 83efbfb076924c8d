package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

func strPtr(s string) *string { return &s }

func output(id string, filter []string, isDefault bool) domain.FlowOutput {
	return domain.FlowOutput{ID: id, DomainFilter: filter, IsDefault: isDefault}
}

func TestRoute_MatchesOutputsByDomainFilter(t *testing.T) {
	outputs := []domain.FlowOutput{
		output("backend", []string{"backend", "infra"}, false),
		output("frontend", []string{"frontend"}, false),
		output("catch-all", nil, true),
	}
	task := domain.Task{Domain: strPtr("backend")}

	got, err := Route(task, outputs)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "backend", got[0].ID)
}

func TestRoute_MatchesMultipleOutputsSharingADomain(t *testing.T) {
	outputs := []domain.FlowOutput{
		output("backend", []string{"backend"}, false),
		output("infra", []string{"backend", "infra"}, false),
		output("catch-all", nil, true),
	}
	task := domain.Task{Domain: strPtr("backend")}

	got, err := Route(task, outputs)

	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRoute_FallsBackToDefaultWhenTaskDomainIsNil(t *testing.T) {
	outputs := []domain.FlowOutput{
		output("backend", []string{"backend"}, false),
		output("catch-all", nil, true),
	}

	got, err := Route(domain.Task{Domain: nil}, outputs)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "catch-all", got[0].ID)
}

func TestRoute_FallsBackToDefaultWhenNothingMatches(t *testing.T) {
	outputs := []domain.FlowOutput{
		output("backend", []string{"backend"}, false),
		output("catch-all", nil, true),
	}
	task := domain.Task{Domain: strPtr("design")}

	got, err := Route(task, outputs)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "catch-all", got[0].ID)
}

func TestRoute_ErrorsWhenNoDefaultOutputExists(t *testing.T) {
	outputs := []domain.FlowOutput{
		output("backend", []string{"backend"}, false),
	}

	_, err := Route(domain.Task{Domain: nil}, outputs)

	require.Error(t, err)
}

func TestRoute_ErrorsOnMultipleDefaultOutputs(t *testing.T) {
	outputs := []domain.FlowOutput{
		output("a", nil, true),
		output("b", nil, true),
	}

	_, err := Route(domain.Task{Domain: nil}, outputs)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "F-O-1")
}

func TestRoute_DomainFilterMatchIsCaseSensitive(t *testing.T) {
	outputs := []domain.FlowOutput{
		output("backend", []string{"Backend"}, false),
		output("catch-all", nil, true),
	}
	task := domain.Task{Domain: strPtr("backend")}

	got, err := Route(task, outputs)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "catch-all", got[0].ID, "mismatched case should not match, falling through to default")
}
