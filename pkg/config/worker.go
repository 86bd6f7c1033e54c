package config

import (
	"fmt"
	"time"
)

// WorkerConfig contains ticker and executor pool configuration.
type WorkerConfig struct {
	// TickInterval is how often the ticker claims due calls.
	TickInterval time.Duration

	// MaxBatch is the maximum number of calls claimed per tick.
	MaxBatch int

	// Concurrency is the number of executor goroutines per process.
	Concurrency int

	// CallTimeout is the total wall-clock budget per call execution.
	CallTimeout time.Duration

	// DrainTimeout is the maximum wait for in-flight calls on shutdown.
	DrainTimeout time.Duration

	// ReapInterval is how often the orphan reaper scans for stale claims.
	ReapInterval time.Duration

	// ReapGrace is added to CallTimeout before an in_progress claim with a
	// stale updated_at counts as orphaned.
	ReapGrace time.Duration
}

// DefaultWorkerConfig returns the built-in worker defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		TickInterval: 60 * time.Second,
		MaxBatch:     50,
		Concurrency:  4,
		CallTimeout:  5 * time.Minute,
		DrainTimeout: 60 * time.Second,
		ReapInterval: 2 * time.Minute,
		ReapGrace:    time.Minute,
	}
}

// Validate checks worker configuration bounds.
func (c WorkerConfig) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.MaxBatch < 1 {
		return fmt.Errorf("max batch must be at least 1")
	}
	if c.Concurrency < 1 || c.Concurrency > 64 {
		return fmt.Errorf("worker concurrency must be between 1 and 64")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive")
	}
	if c.DrainTimeout <= 0 {
		return fmt.Errorf("drain timeout must be positive")
	}
	if c.ReapInterval <= 0 || c.ReapGrace < 0 {
		return fmt.Errorf("reaper intervals must be positive")
	}
	return nil
}
