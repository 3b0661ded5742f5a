// Package expirysweep periodically expires reservations and waitlist claim
// windows whose deadline passed without the scheduled task firing.
package expirysweep

import (
	"context"
	"fmt"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/clock"
	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
)

// Config holds configuration for the expiry sweep worker.
type Config struct {
	WorkerInterval time.Duration `mapstructure:"worker_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		WorkerInterval: time.Minute,
		BatchSize:      100,
	}
}

// Worker is a safety net for the task scheduler: it hands overdue records
// to the engine's idempotent expiry handlers.
type Worker struct {
	repo   dependency.Repository
	engine dependency.Engine
	clock  clock.Clock
	c      *Config
	ctx    context.Context
	stop   context.CancelFunc
}

// New creates a new expiry sweep worker.
func New(c *Config, repo dependency.Repository, engine dependency.Engine, clk clock.Clock) *Worker {
	cfg := DefaultConfig()
	if c != nil {
		if c.WorkerInterval > 0 {
			cfg.WorkerInterval = c.WorkerInterval
		}
		if c.BatchSize > 0 {
			cfg.BatchSize = c.BatchSize
		}
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Worker{
		repo:   repo,
		engine: engine,
		clock:  clk,
		c:      &cfg,
	}
}

// Start starts the worker.
func (w *Worker) Start(ctx context.Context) error {
	if w.ctx != nil && w.stop != nil {
		return fmt.Errorf("expiry sweep worker already started")
	}
	w.ctx, w.stop = context.WithCancel(ctx)
	go w.worker(w.ctx)
	return nil
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() error {
	if w.stop == nil {
		return fmt.Errorf("expiry sweep worker already stopped or not started")
	}
	w.stop()
	w.stop = nil
	w.ctx = nil
	return nil
}
