package workflow

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TemplateStatus distinguishes the currently-used version of a market role's
// template from versions it has superseded.
type TemplateStatus string

const (
	TemplateStatusActive     TemplateStatus = "active"
	TemplateStatusSuperseded TemplateStatus = "superseded"
)

// StepDefinition is one step of a Template: its type, configuration, and the
// set of steps reachable from it.
type StepDefinition struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Type               StepType        `json:"type"`
	Configuration      json.RawMessage `json:"configuration,omitempty"`
	Required           bool            `json:"required"`
	Order              int             `json:"order"`
	AllowedTransitions []string        `json:"allowed_transitions,omitempty"`
}

// ValidationRule is a template-level rule evaluated over accumulated step
// data at validate/submit time, independent of any single step's own
// validation.
type ValidationRule struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Rule        json.RawMessage `json:"rule"`
}

// Template is a `(market_role, version)`-unique, immutable-once-published
// workflow definition: its ordered steps, their transition graph, and
// template-level validation rules.
type Template struct {
	ID              uuid.UUID           `json:"id"`
	MarketRole      string              `json:"market_role"`
	Version         int                 `json:"version"`
	Name            string              `json:"name"`
	Status          TemplateStatus      `json:"status"`
	Steps           []StepDefinition    `json:"steps"`
	Transitions     map[string][]string `json:"transitions"`
	ValidationRules []ValidationRule    `json:"validation_rules,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// Step returns the step definition with the given id, if any.
func (t *Template) Step(stepID string) (StepDefinition, bool) {
	for _, s := range t.Steps {
		if s.ID == stepID {
			return s, true
		}
	}
	return StepDefinition{}, false
}

// FirstStep returns the lowest-Order step, used to pick the entry point for
// a draft instance's first execute_step call.
func (t *Template) FirstStep() (StepDefinition, bool) {
	if len(t.Steps) == 0 {
		return StepDefinition{}, false
	}
	first := t.Steps[0]
	for _, s := range t.Steps[1:] {
		if s.Order < first.Order {
			first = s
		}
	}
	return first, true
}

// LastStep returns the highest-Order step, used to decide whether a
// completed step is the template's terminal step (triggering
// awaiting_validation).
func (t *Template) LastStep() (StepDefinition, bool) {
	if len(t.Steps) == 0 {
		return StepDefinition{}, false
	}
	last := t.Steps[0]
	for _, s := range t.Steps[1:] {
		if s.Order > last.Order {
			last = s
		}
	}
	return last, true
}

// CanTransition reports whether toStep is reachable from fromStep per the
// template's transition map.
func (t *Template) CanTransition(fromStep, toStep string) bool {
	allowed, ok := t.Transitions[fromStep]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == toStep {
			return true
		}
	}
	return false
}

// RequiredSteps returns the ids of every step marked required, in template
// order, for validate/submit's aggregate check.
func (t *Template) RequiredSteps() []string {
	ordered := make([]StepDefinition, len(t.Steps))
	copy(ordered, t.Steps)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j-1].Order > ordered[j].Order; j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}
	ids := make([]string, 0, len(ordered))
	for _, s := range ordered {
		if s.Required {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
