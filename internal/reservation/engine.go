// Package reservation implements the ticket reservation engine: holds with
// expiry, purchase completion, and FIFO redistribution of freed capacity
// through the waitlist. Every operation runs as one repository transaction.
package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/clock"
	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/jekabolt/grbpwr-tickets/internal/metrics"
)

const (
	TaskProcessReservation = "process-reservation"
	TaskReservationExpiry  = "reservation-expiry"
	TaskWaitlistExpiry     = "waitlist-notification-expiry"
)

const (
	defaultReservationTTL    = 10 * time.Minute
	defaultClaimWindow       = 30 * time.Minute
	defaultWaitlistBatchSize = 10
)

type Config struct {
	ReservationTTL    time.Duration `mapstructure:"reservation_ttl"`
	ClaimWindow       time.Duration `mapstructure:"claim_window"`
	WaitlistBatchSize int           `mapstructure:"waitlist_batch_size"`
}

type Engine struct {
	c         *Config
	rep       dependency.Repository
	scheduler dependency.Scheduler
	notifier  dependency.Notifier
	clock     clock.Clock
}

// New creates an engine. Zero config values fall back to the defaults.
func New(c *Config, rep dependency.Repository, s dependency.Scheduler, n dependency.Notifier, clk clock.Clock) *Engine {
	cfg := Config{}
	if c != nil {
		cfg = *c
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = defaultReservationTTL
	}
	if cfg.ClaimWindow <= 0 {
		cfg.ClaimWindow = defaultClaimWindow
	}
	if cfg.WaitlistBatchSize <= 0 {
		cfg.WaitlistBatchSize = defaultWaitlistBatchSize
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Engine{
		c:         &cfg,
		rep:       rep,
		scheduler: s,
		notifier:  n,
		clock:     clk,
	}
}

var _ dependency.Engine = (*Engine)(nil)

// effects collects what a transaction attempt produced that must only be
// acted upon once it commits.
type effects struct {
	now      time.Time
	notes    []*entity.Notification
	touched  map[string]*entity.Inventory
	onCommit []func()
	// fail is returned to the caller after a successful commit.
	fail error
}

func (fx *effects) notify(n *entity.Notification) {
	n.CreatedAt = fx.now
	fx.notes = append(fx.notes, n)
}

func (fx *effects) touch(inv *entity.Inventory) {
	fx.touched[inv.EventId+"/"+inv.TicketTypeId] = inv
}

func (fx *effects) after(f func()) {
	fx.onCommit = append(fx.onCommit, f)
}

// run executes fn in one transaction. fn may run more than once when the
// store retries the transaction; only the effects of the committed attempt
// are applied.
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context, rep dependency.Repository, fx *effects) error) error {
	var fx *effects
	err := e.rep.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
		fx = &effects{
			now:     e.clock.Now(),
			touched: map[string]*entity.Inventory{},
		}
		return fn(ctx, rep, fx)
	})
	if err != nil {
		return err
	}

	for _, inv := range fx.touched {
		metrics.Available.WithLabelValues(inv.EventId, inv.TicketTypeId).Set(float64(inv.AvailableQuantity))
	}
	for _, f := range fx.onCommit {
		f()
	}
	e.deliver(ctx, fx.notes)
	return fx.fail
}

// saveInventory checks the counter invariant before writing the record.
func saveInventory(ctx context.Context, rep dependency.Repository, fx *effects, inv *entity.Inventory) error {
	inv.LastUpdated = fx.now
	if err := inv.Check(); err != nil {
		return err
	}
	if err := rep.Inventory().UpdateInventory(ctx, inv); err != nil {
		return fmt.Errorf("can't update inventory: %w", err)
	}
	fx.touch(inv)
	return nil
}
