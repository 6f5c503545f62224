package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/notify"
	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// Notification is the synchronous best-effort "notification" step handler.
// Delivery failure is recorded but does not fail the workflow unless the
// step's configuration declares required_delivery.
type Notification struct {
	transport notify.Transport
	logger    *zap.Logger
}

// NewNotification constructs a Notification handler sending through transport.
func NewNotification(transport notify.Transport, logger *zap.Logger) *Notification {
	return &Notification{transport: transport, logger: logger.With(zap.String("component", "stephandler-notification"))}
}

func (Notification) Type() workflow.StepType { return workflow.StepTypeNotification }

func (Notification) Validate(_ workflow.StepDefinition, _ json.RawMessage) stephandler.ValidationResult {
	return stephandler.ValidationResult{Valid: true}
}

func (h *Notification) Execute(ctx context.Context, input stephandler.ExecuteInput) (stephandler.ExecuteResult, error) {
	var cfg struct {
		TemplateID       string            `json:"template_id"`
		Recipients       []string          `json:"recipients"`
		Variables        map[string]string `json:"variables,omitempty"`
		RequiredDelivery bool              `json:"required_delivery,omitempty"`
	}
	if err := json.Unmarshal(input.Step.Configuration, &cfg); err != nil {
		return stephandler.ExecuteResult{}, fmt.Errorf("notification: decode step configuration: %w", err)
	}

	result, err := h.transport.Send(ctx, cfg.TemplateID, cfg.Recipients, cfg.Variables)
	if err != nil || !result.Delivered {
		h.logger.Warn("notification delivery failed",
			zap.String("workflow_id", input.Instance.ID.String()),
			zap.String("step_id", input.Step.ID),
			zap.Error(err),
		)
		if cfg.RequiredDelivery {
			return stephandler.ExecuteResult{Outcome: "failed"}, fmt.Errorf("notification: required delivery failed: %w", err)
		}
		return stephandler.ExecuteResult{Outcome: "default"}, nil
	}

	output, _ := json.Marshal(result)
	return stephandler.ExecuteResult{Outcome: "default", Output: output}, nil
}

var _ stephandler.Handler = (*Notification)(nil)
