package config

import (
	"fmt"
	"time"
)

// EngineConfig controls workflow execution, bookmark lifecycle and
// projection behavior for the workflow engine.
type EngineConfig struct {
	// EventReplaySnapshotInterval is validated and defaulted, but no store
	// or engine code reads it: snapshots are written only by explicit
	// eventstore.Store.SaveSnapshot calls.
	EventReplaySnapshotInterval int `mapstructure:"event_replay_snapshot_interval"`

	// EventRetentionYears is how long committed events are retained before
	// they become eligible for archival. 0 means retain indefinitely.
	EventRetentionYears int `mapstructure:"event_retention_years"`

	Handler    HandlerConfig    `mapstructure:"handler"`
	Step       StepConfig       `mapstructure:"step"`
	Bookmark   BookmarkConfig   `mapstructure:"bookmark"`
	Projection ProjectionConfig `mapstructure:"projection"`
}

// HandlerConfig governs retry behavior for calls to external systems: the
// api_call step's provisioning gateway calls and the Saga Coordinator's
// compensation calls. Notification sends are not retried.
type HandlerConfig struct {
	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig configures an exponential backoff policy.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// StepConfig holds defaults applied to step definitions that don't override them.
type StepConfig struct {
	DefaultStartToCloseTimeout time.Duration `mapstructure:"default_start_to_close_timeout"`
}

// BookmarkConfig governs how long a suspended step waits before its bookmark expires.
type BookmarkConfig struct {
	DefaultExpiry time.Duration `mapstructure:"default_expiry"`
}

// ProjectionConfig holds the projection lag setting. MaxLagEvents is
// validated and defaulted, but the recovery loop does not read it: it
// reprojects a workflow as soon as any committed event is past the Index
// Store's projected sequence.
type ProjectionConfig struct {
	MaxLagEvents int `mapstructure:"max_lag_events"`
}

// Validate checks the engine configuration.
func (e *EngineConfig) Validate() error {
	if e.EventReplaySnapshotInterval <= 0 {
		return fmt.Errorf("event_replay_snapshot_interval must be positive")
	}
	if e.EventRetentionYears < 0 {
		return fmt.Errorf("event_retention_years must be non-negative")
	}
	if err := e.Handler.Retry.Validate(); err != nil {
		return fmt.Errorf("handler.retry: %w", err)
	}
	if e.Step.DefaultStartToCloseTimeout <= 0 {
		return fmt.Errorf("step.default_start_to_close_timeout must be positive")
	}
	if e.Bookmark.DefaultExpiry <= 0 {
		return fmt.Errorf("bookmark.default_expiry must be positive")
	}
	if e.Projection.MaxLagEvents <= 0 {
		return fmt.Errorf("projection.max_lag_events must be positive")
	}
	return nil
}

// Validate checks the retry configuration.
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if r.InitialInterval <= 0 {
		return fmt.Errorf("initial_interval must be positive")
	}
	if r.MaxInterval < r.InitialInterval {
		return fmt.Errorf("max_interval must be >= initial_interval")
	}
	if r.Multiplier <= 1 {
		return fmt.Errorf("multiplier must be greater than 1")
	}
	return nil
}

// SetDefaults fills in zero-valued fields with the engine's operational defaults.
func (e *EngineConfig) SetDefaults() {
	if e.EventReplaySnapshotInterval == 0 {
		e.EventReplaySnapshotInterval = 100
	}
	if e.Handler.Retry.MaxAttempts == 0 {
		e.Handler.Retry.MaxAttempts = 5
	}
	if e.Handler.Retry.InitialInterval == 0 {
		e.Handler.Retry.InitialInterval = time.Second
	}
	if e.Handler.Retry.MaxInterval == 0 {
		e.Handler.Retry.MaxInterval = 30 * time.Second
	}
	if e.Handler.Retry.Multiplier == 0 {
		e.Handler.Retry.Multiplier = 2.0
	}
	if e.Step.DefaultStartToCloseTimeout == 0 {
		e.Step.DefaultStartToCloseTimeout = 5 * time.Minute
	}
	if e.Bookmark.DefaultExpiry == 0 {
		e.Bookmark.DefaultExpiry = 72 * time.Hour
	}
	if e.Projection.MaxLagEvents == 0 {
		e.Projection.MaxLagEvents = 1000
	}
}
