// Package redisq is a task scheduler backed by a Redis sorted set scored by
// run time. Tasks are written straight to Redis, so unlike the repository
// scheduler they do not roll back with the caller's transaction; every task
// handler of the engine tolerates records that never committed. Delivery is
// at least once.
package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jekabolt/grbpwr-tickets/internal/clock"
	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
	"github.com/jekabolt/grbpwr-tickets/internal/metrics"
	"github.com/jekabolt/grbpwr-tickets/internal/scheduler"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// envelope is the sorted set member. The id keeps identical payloads distinct.
type envelope struct {
	Id       string          `json:"id"`
	Name     string          `json:"name"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// claimDue atomically leases up to ARGV[2] members scored at or below ARGV[1]
// by moving their score to ARGV[3]. A member stays in the set until its run
// is acknowledged, so a worker that dies mid-run leaves it to be claimed
// again once the lease runs out.
var claimDue = redis.NewScript(`
    local members = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
    for i = 1, #members do
        redis.call("ZADD", KEYS[1], ARGV[3], members[i])
    end
    return members
`)

type Queue struct {
	c      *scheduler.Config
	client *redis.Client
	key    string
	clock  clock.Clock

	mu       sync.RWMutex
	handlers map[string]dependency.TaskHandler

	ctx  context.Context
	stop context.CancelFunc
	done chan struct{}
}

var _ dependency.Scheduler = (*Queue)(nil)

// New creates a queue on client. Worker settings come from the scheduler config.
func New(cfg Config, c *scheduler.Config, client *redis.Client, clk clock.Clock) *Queue {
	wc := c.WithDefaults()
	key := cfg.Key
	if key == "" {
		key = "tickets:tasks"
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Queue{
		c:        &wc,
		client:   client,
		key:      key,
		clock:    clk,
		handlers: map[string]dependency.TaskHandler{},
	}
}

// NewClient opens a Redis client and checks the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("can't ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

func (q *Queue) Handle(name string, h dependency.TaskHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

// Schedule adds the task to the sorted set. rep is not used.
func (q *Queue) Schedule(ctx context.Context, _ dependency.Repository, name string, payload any, runAt time.Time) error {
	bs, err := scheduler.EncodePayload(payload)
	if err != nil {
		return err
	}
	return q.add(ctx, &envelope{
		Id:      uuid.NewString(),
		Name:    name,
		Payload: bs,
	}, runAt)
}

func (q *Queue) add(ctx context.Context, env *envelope, runAt time.Time) error {
	member, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("can't encode task: %w", err)
	}
	err = q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  score(runAt),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("can't add task %s: %w", env.Name, err)
	}
	return nil
}

func (q *Queue) Dispatch(ctx context.Context, name string, payload []byte) error {
	q.mu.RLock()
	h, ok := q.handlers[name]
	q.mu.RUnlock()
	if !ok {
		return gerr.UnknownTask
	}
	return h(ctx, payload)
}

// Start starts the worker.
func (q *Queue) Start(ctx context.Context) error {
	if q.ctx != nil && q.stop != nil {
		return fmt.Errorf("redis task worker already started")
	}
	q.ctx, q.stop = context.WithCancel(ctx)
	q.done = make(chan struct{})
	go q.worker(q.ctx)
	return nil
}

// Stop stops the worker and waits for the running batch to finish.
func (q *Queue) Stop() error {
	if q.stop == nil {
		return fmt.Errorf("redis task worker already stopped or not started")
	}
	q.stop()
	<-q.done
	q.stop = nil
	q.ctx = nil
	return nil
}

func (q *Queue) worker(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(q.c.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := q.RunDue(ctx); err != nil && ctx.Err() == nil {
				slog.Default().ErrorContext(ctx, "can't run due redis tasks",
					slog.String("err", err.Error()),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunDue claims one batch of due tasks and runs them. Claimed members are
// leased for the configured lease and removed only once their run finished;
// failures are put back with a delay.
func (q *Queue) RunDue(ctx context.Context) (int, error) {
	members, err := q.claim(ctx, q.clock.Now())
	if err != nil {
		return 0, err
	}

	done := 0
	for _, m := range members {
		env, err := decode(m)
		if err != nil {
			slog.Default().ErrorContext(ctx, "dropping malformed task",
				slog.String("member", m),
				slog.String("err", err.Error()),
			)
			q.ack(ctx, m)
			continue
		}
		if q.run(ctx, m, env) {
			done++
		}
	}
	return done, nil
}

func (q *Queue) claim(ctx context.Context, now time.Time) ([]string, error) {
	members, err := claimDue.Run(ctx, q.client, []string{q.key},
		dueScore(now), q.c.BatchSize, score(now.Add(q.c.Lease)),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("can't claim due tasks: %w", err)
	}
	return members, nil
}

// ack removes a finished member. It outlives ctx so a stopping worker still
// settles the task it ran.
func (q *Queue) ack(ctx context.Context, member string) {
	err := q.client.ZRem(context.WithoutCancel(ctx), q.key, member).Err()
	if err != nil {
		slog.Default().ErrorContext(ctx, "can't remove task",
			slog.String("member", member),
			slog.String("err", err.Error()),
		)
	}
}

// requeue swaps member for env scheduled at runAt in one transaction.
func (q *Queue) requeue(ctx context.Context, member string, env *envelope, runAt time.Time) error {
	next, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("can't encode task: %w", err)
	}
	ctx = context.WithoutCancel(ctx)
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key, member)
		pipe.ZAdd(ctx, q.key, redis.Z{Score: score(runAt), Member: string(next)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't requeue task %s: %w", env.Name, err)
	}
	return nil
}

func (q *Queue) run(ctx context.Context, member string, env *envelope) bool {
	env.Attempts++
	err := q.Dispatch(ctx, env.Name, env.Payload)
	if err == nil {
		metrics.Tasks.WithLabelValues(env.Name, metrics.ResultOk).Inc()
		q.ack(ctx, member)
		return true
	}

	final := scheduler.Permanent(err) || env.Attempts >= q.c.MaxAttempts
	slog.Default().WarnContext(ctx, "redis task failed",
		slog.String("task_id", env.Id),
		slog.String("name", env.Name),
		slog.Int("attempts", env.Attempts),
		slog.Bool("final", final),
		slog.String("err", err.Error()),
	)
	if final {
		metrics.Tasks.WithLabelValues(env.Name, metrics.ResultFail).Inc()
		q.ack(ctx, member)
		return false
	}
	metrics.Tasks.WithLabelValues(env.Name, metrics.ResultRetry).Inc()

	retryAt := q.clock.Now().Add(q.c.RetryBackoff * time.Duration(env.Attempts))
	if err := q.requeue(ctx, member, env, retryAt); err != nil {
		// the lease still holds the old member, it runs again once it expires
		slog.Default().ErrorContext(ctx, "can't requeue task",
			slog.String("task_id", env.Id),
			slog.String("err", err.Error()),
		)
	}
	return false
}

func decode(member string) (*envelope, error) {
	env := &envelope{}
	if err := json.Unmarshal([]byte(member), env); err != nil {
		return nil, err
	}
	if env.Name == "" {
		return nil, fmt.Errorf("task without name")
	}
	return env, nil
}

// score is t in microseconds since the epoch, rounded up so a task never
// scores below its run time.
func score(t time.Time) float64 {
	us := t.UnixMicro()
	if t.After(time.UnixMicro(us)) {
		us++
	}
	return float64(us)
}

// dueScore is the highest score that is due at now.
func dueScore(now time.Time) float64 {
	return float64(now.UnixMicro())
}
