package template

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketgrid/onboardengine/internal/workflow"
)

// LoadAll reads every row from workflow_templates and step_definitions and
// registers the resulting templates into r. It is called once at process
// startup; templates are otherwise immutable for the life of the process
// per the shared-resource policy.
func LoadAll(ctx context.Context, pool *pgxpool.Pool, r *Registry) error {
	rows, err := pool.Query(ctx, `SELECT id, market_role, version, name, status, transitions, validation_rules, created_at FROM workflow_templates`)
	if err != nil {
		return fmt.Errorf("template: load_all: query templates: %w", err)
	}
	defer rows.Close()

	var templates []*workflow.Template
	for rows.Next() {
		var t workflow.Template
		var transitionsRaw, rulesRaw []byte
		if err := rows.Scan(&t.ID, &t.MarketRole, &t.Version, &t.Name, &t.Status, &transitionsRaw, &rulesRaw, &t.CreatedAt); err != nil {
			return fmt.Errorf("template: load_all: scan template: %w", err)
		}
		if err := json.Unmarshal(transitionsRaw, &t.Transitions); err != nil {
			return fmt.Errorf("template: load_all: decode transitions for %s v%d: %w", t.MarketRole, t.Version, err)
		}
		if len(rulesRaw) > 0 {
			if err := json.Unmarshal(rulesRaw, &t.ValidationRules); err != nil {
				return fmt.Errorf("template: load_all: decode validation_rules for %s v%d: %w", t.MarketRole, t.Version, err)
			}
		}
		templates = append(templates, &t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("template: load_all: iterate templates: %w", err)
	}

	for _, t := range templates {
		steps, err := loadSteps(ctx, pool, t.ID)
		if err != nil {
			return err
		}
		t.Steps = steps
	}

	// Register active templates last so superseded versions don't
	// overwrite the active pointer when iteration order is unstable.
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Status != workflow.TemplateStatusActive && templates[j].Status == workflow.TemplateStatusActive
	})
	for _, t := range templates {
		if err := r.Register(t); err != nil {
			return fmt.Errorf("template: load_all: register %s v%d: %w", t.MarketRole, t.Version, err)
		}
	}
	return nil
}

func loadSteps(ctx context.Context, pool *pgxpool.Pool, templateID uuid.UUID) ([]workflow.StepDefinition, error) {
	rows, err := pool.Query(ctx,
		`SELECT id, name, type, configuration, required, step_order, allowed_transitions
		 FROM step_definitions WHERE template_id = $1 ORDER BY step_order ASC`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("template: load_steps: %w", err)
	}
	defer rows.Close()

	var steps []workflow.StepDefinition
	for rows.Next() {
		var s workflow.StepDefinition
		var allowedRaw []byte
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.Configuration, &s.Required, &s.Order, &allowedRaw); err != nil {
			return nil, fmt.Errorf("template: load_steps: scan: %w", err)
		}
		if len(allowedRaw) > 0 {
			if err := json.Unmarshal(allowedRaw, &s.AllowedTransitions); err != nil {
				return nil, fmt.Errorf("template: load_steps: decode allowed_transitions: %w", err)
			}
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
