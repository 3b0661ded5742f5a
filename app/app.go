package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jekabolt/grbpwr-tickets/config"
	httpapi "github.com/jekabolt/grbpwr-tickets/internal/api/http"
	"github.com/jekabolt/grbpwr-tickets/internal/apisrv/tickets"
	"github.com/jekabolt/grbpwr-tickets/internal/auth/jwt"
	"github.com/jekabolt/grbpwr-tickets/internal/clock"
	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/expirysweep"
	"github.com/jekabolt/grbpwr-tickets/internal/notify"
	"github.com/jekabolt/grbpwr-tickets/internal/ratelimit"
	"github.com/jekabolt/grbpwr-tickets/internal/reservation"
	"github.com/jekabolt/grbpwr-tickets/internal/scheduler"
	"github.com/jekabolt/grbpwr-tickets/internal/scheduler/redisq"
	"github.com/jekabolt/grbpwr-tickets/internal/store"
	"github.com/jekabolt/grbpwr-tickets/internal/store/bunt"
	"github.com/redis/go-redis/v9"
)

// App is the main application
type App struct {
	hs       *httpapi.Server
	db       dependency.Repository
	sch      dependency.Scheduler
	redis    *redis.Client
	notifier *notify.Notifier
	sweep    *expirysweep.Worker
	limiter  *ratelimit.ReservationLimiter
	c        *config.Config
	done     chan struct{}
	once     sync.Once
}

// New returns a new instance of App
func New(c *config.Config) *App {
	return &App{
		c:    c,
		done: make(chan struct{}),
	}
}

// Start starts the app
func (a *App) Start(ctx context.Context) error {
	var err error
	slog.Default().InfoContext(ctx, "starting tickets service",
		slog.String("storage", a.c.Storage.Backend),
		slog.String("scheduler", a.c.Scheduler.Backend),
	)

	if err := a.c.Validate(); err != nil {
		return err
	}

	a.db, err = openStore(ctx, a.c)
	if err != nil {
		slog.Default().ErrorContext(ctx, "couldn't open the store", slog.String("err", err.Error()))
		return err
	}

	clk := clock.NewSystem()

	switch a.c.Scheduler.Backend {
	case config.SchedulerRedis:
		a.redis, err = redisq.NewClient(ctx, a.c.Redis)
		if err != nil {
			slog.Default().ErrorContext(ctx, "couldn't connect to redis", slog.String("err", err.Error()))
			return err
		}
		a.sch = redisq.New(a.c.Redis, &a.c.Scheduler.Config, a.redis, clk)
	default:
		a.sch = scheduler.New(&a.c.Scheduler.Config, a.db, clk)
	}

	a.notifier, err = notify.New(ctx, &a.c.Notify, a.db.Users())
	if err != nil {
		slog.Default().ErrorContext(ctx, "failed to create notifier", slog.String("err", err.Error()))
		return err
	}

	engine := reservation.New(&a.c.Engine, a.db, a.sch, a.notifier, clk)
	engine.RegisterTasks(a.sch)

	if err := a.sch.Start(ctx); err != nil {
		return fmt.Errorf("cannot start scheduler: %w", err)
	}

	a.sweep = expirysweep.New(&a.c.Sweep, a.db, engine, clk)
	if err := a.sweep.Start(ctx); err != nil {
		return fmt.Errorf("cannot start expiry sweep: %w", err)
	}

	jwtAuth, err := jwt.New(&a.c.Auth)
	if err != nil {
		return err
	}
	a.limiter = ratelimit.New(&a.c.RateLimit, clk)
	api := tickets.New(&a.c.API, engine, a.sch, a.db, a.limiter, jwtAuth, clk)

	// start API server
	a.hs = httpapi.New(&a.c.HTTP)
	if err = a.hs.Start(ctx, api.Routes()); err != nil {
		slog.Default().ErrorContext(ctx, "cannot start http server", slog.String("err", err.Error()))
		return err
	}

	go func() {
		<-a.hs.Done()
		a.once.Do(func() { close(a.done) })
	}()

	return nil
}

func openStore(ctx context.Context, c *config.Config) (dependency.Repository, error) {
	if c.Storage.Backend == config.StorageBunt {
		s, err := bunt.New(c.Bunt)
		if err != nil {
			return nil, fmt.Errorf("can't open bunt store: %w", err)
		}
		return s, nil
	}
	s, err := store.New(ctx, c.DB)
	if err != nil {
		return nil, fmt.Errorf("can't connect to mysql: %w", err)
	}
	return s, nil
}

// Stop stops the application and waits for all services to exit
func (a *App) Stop(ctx context.Context) {
	if a.hs != nil {
		if err := a.hs.Stop(ctx); err != nil {
			slog.Default().ErrorContext(ctx, "http server shutdown", slog.String("err", err.Error()))
		}
	}
	if a.sweep != nil {
		if err := a.sweep.Stop(); err != nil {
			slog.Default().ErrorContext(ctx, "expiry sweep stop", slog.String("err", err.Error()))
		}
	}
	if a.sch != nil {
		if err := a.sch.Stop(); err != nil {
			slog.Default().ErrorContext(ctx, "scheduler stop", slog.String("err", err.Error()))
		}
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			slog.Default().ErrorContext(ctx, "notifier close", slog.String("err", err.Error()))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.once.Do(func() { close(a.done) })
}

// Done returns a channel that is closed after the application has exited
func (a *App) Done() <-chan struct{} {
	return a.done
}
