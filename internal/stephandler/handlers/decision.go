package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Decision is the synchronous "decision" step handler: it evaluates a pure
// predicate over the accumulated step data and resolves to exactly one of
// its configured branches. It never calls out and never blocks.
type Decision struct{}

// NewDecision constructs a Decision handler.
func NewDecision() *Decision { return &Decision{} }

func (Decision) Type() workflow.StepType { return workflow.StepTypeDecision }

func (Decision) Validate(step workflow.StepDefinition, _ json.RawMessage) stephandler.ValidationResult {
	var cfg decisionConfig
	if err := json.Unmarshal(step.Configuration, &cfg); err != nil {
		return stephandler.ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("invalid decision configuration: %s", err)}}
	}
	if len(cfg.Branches) == 0 {
		return stephandler.ValidationResult{Valid: false, Errors: []string{"decision step must configure at least one branch"}}
	}
	return stephandler.ValidationResult{Valid: true}
}

// decisionConfig describes the branches a decision step can resolve to.
// Branches are evaluated in order; the first whose Field/Equals pair
// matches the accumulated data wins. Default names the branch used when
// no condition matches.
type decisionConfig struct {
	Branches []decisionBranch `json:"branches"`
	Default  string           `json:"default,omitempty"`
}

type decisionBranch struct {
	Name   string `json:"name"`
	Field  string `json:"field"`
	Equals any    `json:"equals"`
}

func (Decision) Execute(_ context.Context, input stephandler.ExecuteInput) (stephandler.ExecuteResult, error) {
	var cfg decisionConfig
	if err := json.Unmarshal(input.Step.Configuration, &cfg); err != nil {
		return stephandler.ExecuteResult{}, fmt.Errorf("decision: decode step configuration: %w", err)
	}

	var decoded map[string]any
	if len(input.Data) > 0 {
		if err := json.Unmarshal(input.Data, &decoded); err != nil {
			return stephandler.ExecuteResult{}, fmt.Errorf("decision: data is not an object: %w", err)
		}
	}

	for _, branch := range cfg.Branches {
		if v, ok := decoded[branch.Field]; ok && equalJSON(v, branch.Equals) {
			return stephandler.ExecuteResult{Outcome: branch.Name, Output: input.Data}, nil
		}
	}

	if cfg.Default == "" {
		return stephandler.ExecuteResult{}, fmt.Errorf("decision: no branch matched and no default configured")
	}
	return stephandler.ExecuteResult{Outcome: cfg.Default, Output: input.Data}, nil
}

func equalJSON(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}

var _ stephandler.Handler = Decision{}
