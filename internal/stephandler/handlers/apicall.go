package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/provisioning"
	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// RetryPolicy configures the exponential-backoff-with-jitter retry applied
// to transient external failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff backoff.BackOff
}

// DefaultRetryPolicy returns a policy allowing maxAttempts retries over a
// default exponential backoff. Step configuration has no retry override.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseBackoff: backoff.NewExponentialBackOff(),
	}
}

// APICall is the asynchronous-I/O "api_call" step handler: execute issues
// the configured HTTP-shaped call against a provisioning.Gateway with
// retry, classifying errors into transient (retry) vs permanent (fail
// step).
type APICall struct {
	gateway provisioning.Gateway
	retry   RetryPolicy
	logger  *zap.Logger
}

// NewAPICall constructs an APICall handler calling out to gateway.
func NewAPICall(gateway provisioning.Gateway, retry RetryPolicy, logger *zap.Logger) *APICall {
	return &APICall{gateway: gateway, retry: retry, logger: logger.With(zap.String("component", "stephandler-api_call"))}
}

func (APICall) Type() workflow.StepType { return workflow.StepTypeAPICall }

func (APICall) Validate(_ workflow.StepDefinition, _ json.RawMessage) stephandler.ValidationResult {
	return stephandler.ValidationResult{Valid: true}
}

func (h *APICall) Execute(ctx context.Context, input stephandler.ExecuteInput) (stephandler.ExecuteResult, error) {
	var cfg struct {
		Method string `json:"method"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(input.Step.Configuration, &cfg); err != nil {
		return stephandler.ExecuteResult{}, fmt.Errorf("api_call: decode step configuration: %w", err)
	}

	req := provisioning.Request{
		Method:         cfg.Method,
		URL:            cfg.URL,
		Body:           input.Data,
		IdempotencyKey: fmt.Sprintf("%s:%s", input.Instance.ID, input.Step.ID),
	}

	var resp provisioning.Response
	attempts := 0
	policy := backoff.WithMaxRetries(h.retry.BaseBackoff, uint64(h.retry.MaxAttempts))

	err := backoff.Retry(func() error {
		attempts++
		r, err := h.gateway.Do(ctx, req)
		if err != nil {
			var t provisioning.Transient
			if !errors.As(err, &t) || !t.Transient() {
				return backoff.Permanent(err)
			}
			h.logger.Warn("api_call attempt failed, retrying",
				zap.String("workflow_id", input.Instance.ID.String()),
				zap.String("step_id", input.Step.ID),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return err
		}
		resp = r
		return nil
	}, policy)

	if err != nil {
		return stephandler.ExecuteResult{Outcome: "failed", Output: nil}, fmt.Errorf("api_call: %w", err)
	}
	return stephandler.ExecuteResult{Outcome: "default", Output: resp.Body}, nil
}

// Compensate sends a configured counter-request (e.g. revoke credentials),
// or is a no-op if the step's configuration declares no compensation call.
func (h *APICall) Compensate(ctx context.Context, step workflow.StepDefinition, instance *workflow.Instance) error {
	var cfg struct {
		CompensateMethod string `json:"compensate_method,omitempty"`
		CompensateURL    string `json:"compensate_url,omitempty"`
	}
	if err := json.Unmarshal(step.Configuration, &cfg); err != nil {
		return fmt.Errorf("api_call: compensate: decode step configuration: %w", err)
	}
	if cfg.CompensateURL == "" {
		return nil
	}
	_, err := h.gateway.Do(ctx, provisioning.Request{
		Method:         cfg.CompensateMethod,
		URL:            cfg.CompensateURL,
		IdempotencyKey: fmt.Sprintf("compensate:%s:%s", instance.ID, step.ID),
	})
	if err != nil {
		return fmt.Errorf("api_call: compensate: %w", err)
	}
	return nil
}

var (
	_ stephandler.Handler     = (*APICall)(nil)
	_ stephandler.Compensator = (*APICall)(nil)
)
