package config

import (
	"fmt"
	"time"
)

// RecoveryConfig holds configuration for the background recovery loop that
// re-attaches crashed in-flight workflows, expires stale bookmarks and
// rebuilds projections that have fallen behind the event stream.
type RecoveryConfig struct {
	// Enabled controls whether the recovery loop is started.
	Enabled bool `mapstructure:"enabled"`

	// ScanInterval is how often to poll for workflows needing recovery.
	ScanInterval time.Duration `mapstructure:"scan_interval"`

	// BookmarkSweepInterval is how often to scan for expired bookmarks.
	BookmarkSweepInterval time.Duration `mapstructure:"bookmark_sweep_interval"`

	// Workers is the number of concurrent worker goroutines draining the
	// recovery queue.
	Workers int `mapstructure:"workers"`

	// ShutdownTimeout bounds how long to wait for in-flight recovery work
	// to finish during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Validate checks the recovery configuration.
func (r *RecoveryConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be positive")
	}
	if r.BookmarkSweepInterval <= 0 {
		return fmt.Errorf("bookmark_sweep_interval must be positive")
	}
	if r.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if r.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}

// SetDefaults fills in zero-valued fields with operational defaults.
func (r *RecoveryConfig) SetDefaults() {
	if r.ScanInterval == 0 {
		r.ScanInterval = 15 * time.Second
	}
	if r.BookmarkSweepInterval == 0 {
		r.BookmarkSweepInterval = time.Minute
	}
	if r.Workers == 0 {
		r.Workers = 3
	}
	if r.ShutdownTimeout == 0 {
		r.ShutdownTimeout = 30 * time.Second
	}
}
