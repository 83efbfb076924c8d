// Package router implements the domain router (C7): a pure function that
// dispatches one AI-detected task to the subset of a flow's outputs whose
// domain filter matches.
package router

import (
	"fmt"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// Route selects the outputs a task should be written to.
//
// Filter to outputs whose DomainFilter contains task.Domain (case-sensitive).
// If task.Domain is nil or nothing matched, fall back to the unique default
// output. Two active defaults is a data-integrity fault (violates F-O-1);
// the orchestrator fails the task write, not the whole discussion.
func Route(task domain.Task, outputs []domain.FlowOutput) ([]domain.FlowOutput, error) {
	var matched []domain.FlowOutput
	if task.Domain != nil {
		for _, o := range outputs {
			if containsDomain(o.DomainFilter, *task.Domain) {
				matched = append(matched, o)
			}
		}
	}
	if len(matched) > 0 {
		return matched, nil
	}

	return defaultOutputs(outputs)
}

func containsDomain(filter []string, domainName string) bool {
	for _, d := range filter {
		if d == domainName {
			return true
		}
	}
	return false
}

func defaultOutputs(outputs []domain.FlowOutput) ([]domain.FlowOutput, error) {
	var defaults []domain.FlowOutput
	for _, o := range outputs {
		if o.IsDefault {
			defaults = append(defaults, o)
		}
	}
	switch len(defaults) {
	case 0:
		return nil, fmt.Errorf("no default output configured among %d outputs", len(outputs))
	case 1:
		return defaults, nil
	default:
		return nil, fmt.Errorf("data integrity fault: %d active default outputs, expected exactly 1 (F-O-1)", len(defaults))
	}
}
