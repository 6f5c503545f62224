package saga

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/stephandler"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

// recordingHandler is a test-only Handler + Compensator that records call
// order and can be configured to always fail compensation.
type recordingHandler struct {
	stepType   workflow.StepType
	calls      *[]string
	failAlways bool
}

func (h recordingHandler) Type() workflow.StepType { return h.stepType }
func (recordingHandler) Validate(workflow.StepDefinition, json.RawMessage) stephandler.ValidationResult {
	return stephandler.ValidationResult{Valid: true}
}
func (recordingHandler) Execute(context.Context, stephandler.ExecuteInput) (stephandler.ExecuteResult, error) {
	return stephandler.ExecuteResult{Outcome: "default"}, nil
}
func (h recordingHandler) Compensate(_ context.Context, step workflow.StepDefinition, _ *workflow.Instance) error {
	*h.calls = append(*h.calls, step.ID)
	if h.failAlways {
		return errors.New("compensation backend unavailable")
	}
	return nil
}

func completedAt(t time.Time) *time.Time { return &t }

func buildInstanceAndTemplate(calls *[]string, failStep string) (*workflow.Template, *workflow.Instance, *stephandler.Registry) {
	tmpl := &workflow.Template{
		ID:         uuid.New(),
		MarketRole: "generator",
		Version:    1,
		Steps: []workflow.StepDefinition{
			{ID: "company_info", Type: "form_kind", Order: 1},
			{ID: "portfolio", Type: "api_kind", Order: 2},
			{ID: "compliance", Type: "approval_kind", Order: 3},
		},
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	instance := &workflow.Instance{
		ID: uuid.New(),
		StepStates: map[string]workflow.StepState{
			"company_info": {StepID: "company_info", Status: workflow.StepStatusCompleted, CompletedAt: completedAt(base)},
			"portfolio":    {StepID: "portfolio", Status: workflow.StepStatusCompleted, CompletedAt: completedAt(base.Add(time.Minute))},
			"compliance":   {StepID: "compliance", Status: workflow.StepStatusCompleted, CompletedAt: completedAt(base.Add(2 * time.Minute))},
		},
	}

	logger := zap.NewNop()
	reg := stephandler.New(logger)
	for _, st := range []workflow.StepType{"form_kind", "api_kind", "approval_kind"} {
		_ = reg.Register(recordingHandler{stepType: st, calls: calls, failAlways: st == workflow.StepType(failStep)})
	}
	return tmpl, instance, reg
}

func TestCompensate_VisitsStepsInStrictReverseCompletionOrder(t *testing.T) {
	var calls []string
	tmpl, instance, reg := buildInstanceAndTemplate(&calls, "")
	coord := New(reg, RetryPolicy{MaxAttempts: 1, BaseBackoff: backoff.NewExponentialBackOff()}, zap.NewNop())

	outcomes, err := coord.Compensate(context.Background(), tmpl, instance, "company_info")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, []string{"compliance", "portfolio"}, calls)
	for _, o := range outcomes {
		assert.True(t, o.Compensated)
	}
}

func TestCompensate_StopsFailFastOnExhaustedRetries(t *testing.T) {
	var calls []string
	tmpl, instance, reg := buildInstanceAndTemplate(&calls, "api_kind")
	coord := New(reg, RetryPolicy{MaxAttempts: 0, BaseBackoff: backoff.NewExponentialBackOff()}, zap.NewNop())

	outcomes, err := coord.Compensate(context.Background(), tmpl, instance, "company_info")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompensationExhausted)

	// compliance compensates fine, portfolio fails and the saga stops --
	// company_info, which was never on the reverse path past the failure,
	// must never be attempted.
	assert.Equal(t, []string{"compliance", "portfolio"}, calls)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Compensated)
	assert.False(t, outcomes[1].Compensated)
}

func TestCompensate_NothingBetweenToStepAndCurrentIsANoOp(t *testing.T) {
	var calls []string
	tmpl, instance, reg := buildInstanceAndTemplate(&calls, "")
	coord := New(reg, RetryPolicy{MaxAttempts: 1, BaseBackoff: backoff.NewExponentialBackOff()}, zap.NewNop())

	outcomes, err := coord.Compensate(context.Background(), tmpl, instance, "compliance")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Empty(t, calls)
}
