// Package scheduler runs named tasks at or after a requested time. Tasks are
// rows of the repository, so a task scheduled inside a transaction exists
// only if that transaction commits. Delivery is at least once.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/clock"
	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config holds configuration for the task worker.
type Config struct {
	WorkerInterval time.Duration `mapstructure:"worker_interval"`
	Lease          time.Duration `mapstructure:"lease"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		WorkerInterval: time.Second,
		Lease:          time.Minute,
		BatchSize:      50,
		MaxAttempts:    10,
		RetryBackoff:   5 * time.Second,
	}
}

// Scheduler stores tasks through the repository and runs them from a polling worker.
type Scheduler struct {
	c     *Config
	repo  dependency.Repository
	clock clock.Clock

	mu       sync.RWMutex
	handlers map[string]dependency.TaskHandler

	ctx  context.Context
	stop context.CancelFunc
	done chan struct{}
}

var _ dependency.Scheduler = (*Scheduler)(nil)

// WithDefaults returns c with zero values replaced by DefaultConfig values.
func (c *Config) WithDefaults() Config {
	dc := DefaultConfig()
	if c == nil {
		return dc
	}
	cfg := *c
	if cfg.WorkerInterval <= 0 {
		cfg.WorkerInterval = dc.WorkerInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = dc.Lease
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = dc.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = dc.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = dc.RetryBackoff
	}
	return cfg
}

// New creates a new scheduler. Zero config values fall back to DefaultConfig.
func New(c *Config, repo dependency.Repository, clk clock.Clock) *Scheduler {
	cfg := c.WithDefaults()
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Scheduler{
		c:        &cfg,
		repo:     repo,
		clock:    clk,
		handlers: map[string]dependency.TaskHandler{},
	}
}

// Handle registers h as the handler of tasks called name.
func (s *Scheduler) Handle(name string, h dependency.TaskHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

func (s *Scheduler) handler(name string) (dependency.TaskHandler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[name]
	return h, ok
}

// Schedule stores the task through rep, which may be a transaction.
func (s *Scheduler) Schedule(ctx context.Context, rep dependency.Repository, name string, payload any, runAt time.Time) error {
	bs, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	if rep == nil {
		rep = s.repo
	}
	_, err = rep.Tasks().AddTask(ctx, &entity.TaskInsert{
		Name:    name,
		Payload: bs,
		RunAt:   runAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("can't add task %s: %w", name, err)
	}
	return nil
}

// Dispatch runs the handler of name right away.
func (s *Scheduler) Dispatch(ctx context.Context, name string, payload []byte) error {
	h, ok := s.handler(name)
	if !ok {
		return gerr.UnknownTask
	}
	return h(ctx, payload)
}

// Start starts the worker.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.ctx != nil && s.stop != nil {
		return fmt.Errorf("scheduler worker already started")
	}
	s.ctx, s.stop = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.worker(s.ctx)
	return nil
}

// Stop stops the worker and waits for the running batch to finish.
func (s *Scheduler) Stop() error {
	if s.stop == nil {
		return fmt.Errorf("scheduler worker already stopped or not started")
	}
	s.stop()
	<-s.done
	s.stop = nil
	s.ctx = nil
	return nil
}

// EncodePayload renders a task payload as JSON; byte slices pass through.
func EncodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}
	bs, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("can't encode task payload: %w", err)
	}
	return bs, nil
}

// Permanent reports errors that retrying cannot fix.
func Permanent(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied:
		return true
	}
	return false
}
