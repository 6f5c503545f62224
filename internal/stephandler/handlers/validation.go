package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Validation is the "validation" step handler: it runs aggregate
// validators over accumulated step data rather than the single step's own
// data, and never advances state on failure.
type Validation struct{}

// NewValidation constructs a Validation handler.
func NewValidation() *Validation { return &Validation{} }

func (Validation) Type() workflow.StepType { return workflow.StepTypeValidation }

func (Validation) Validate(_ workflow.StepDefinition, _ json.RawMessage) stephandler.ValidationResult {
	return stephandler.ValidationResult{Valid: true}
}

// requiredField is one template-level aggregate rule: stepID.fieldName must
// be present and non-empty across the accumulated step data.
type requiredField struct {
	StepID string `json:"step_id"`
	Field  string `json:"field"`
}

func (Validation) Execute(_ context.Context, input stephandler.ExecuteInput) (stephandler.ExecuteResult, error) {
	var cfg struct {
		RequiredFields []requiredField `json:"required_fields,omitempty"`
	}
	if len(input.Step.Configuration) > 0 {
		if err := json.Unmarshal(input.Step.Configuration, &cfg); err != nil {
			return stephandler.ExecuteResult{}, fmt.Errorf("validation: decode step configuration: %w", err)
		}
	}

	var errs []string
	for _, rule := range cfg.RequiredFields {
		state, ok := input.Instance.StepStates[rule.StepID]
		if !ok || len(state.Data) == 0 {
			errs = append(errs, fmt.Sprintf("%s.%s is required", rule.StepID, rule.Field))
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal(state.Data, &decoded); err != nil {
			errs = append(errs, fmt.Sprintf("%s data is not an object", rule.StepID))
			continue
		}
		if v, ok := decoded[rule.Field]; !ok || v == nil || v == "" {
			errs = append(errs, fmt.Sprintf("%s.%s is required", rule.StepID, rule.Field))
		}
	}

	if len(errs) > 0 {
		output, _ := json.Marshal(errs)
		return stephandler.ExecuteResult{Outcome: "failed", Output: output}, nil
	}
	return stephandler.ExecuteResult{Outcome: "passed"}, nil
}

var _ stephandler.Handler = Validation{}
