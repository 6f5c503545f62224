package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Form is the synchronous "form" step handler: validate runs the step's
// configured JSON Schema rules (required, pattern, min/max length,
// min/max items, options membership) over the submitted data; execute
// persists it and completes immediately.
type Form struct{}

// NewForm constructs a Form handler.
func NewForm() *Form { return &Form{} }

func (Form) Type() workflow.StepType { return workflow.StepTypeForm }

func (Form) Validate(step workflow.StepDefinition, data json.RawMessage) stephandler.ValidationResult {
	if len(step.Configuration) == 0 {
		return stephandler.ValidationResult{Valid: true}
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(step.ID+".schema.json", bytes.NewReader(step.Configuration)); err != nil {
		return stephandler.ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("invalid schema for step %s: %s", step.ID, err)}}
	}
	schema, err := compiler.Compile(step.ID + ".schema.json")
	if err != nil {
		return stephandler.ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("invalid schema for step %s: %s", step.ID, err)}}
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return stephandler.ValidationResult{Valid: false, Errors: []string{"submitted data is not valid JSON"}}
	}

	if err := schema.Validate(decoded); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return stephandler.ValidationResult{Valid: false, Errors: flattenSchemaErrors(verr)}
		}
		return stephandler.ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	return stephandler.ValidationResult{Valid: true}
}

func (Form) Execute(_ context.Context, input stephandler.ExecuteInput) (stephandler.ExecuteResult, error) {
	return stephandler.ExecuteResult{Outcome: "default", Output: input.Data}, nil
}

// Compensate deletes the persisted form data by returning the instance's
// step data to empty; the Engine applies this via a STEP_COMPENSATED event
// rather than this method mutating anything directly.
func (Form) Compensate(_ context.Context, _ workflow.StepDefinition, _ *workflow.Instance) error {
	return nil
}

func flattenSchemaErrors(verr *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, fmt.Sprintf("%s: %s", e.InstanceLocation, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}

var (
	_ stephandler.Handler     = Form{}
	_ stephandler.Compensator = Form{}
)
