package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/jekabolt/grbpwr-tickets/internal/metrics"
)

func (s *Scheduler) worker(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.c.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunDue(ctx); err != nil && ctx.Err() == nil {
				slog.Default().ErrorContext(ctx, "can't run due tasks",
					slog.String("err", err.Error()),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunDue leases one batch of due tasks and runs them. It returns the number
// of tasks that completed.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	tasks, err := s.repo.Tasks().AcquireDueTasks(ctx, now, s.c.Lease, s.c.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("can't acquire due tasks: %w", err)
	}

	done := 0
	for i := range tasks {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if s.runTask(ctx, &tasks[i]) {
			done++
		}
	}
	return done, nil
}

func (s *Scheduler) runTask(ctx context.Context, t *entity.Task) bool {
	err := s.Dispatch(ctx, t.Name, t.Payload)
	if err == nil {
		metrics.Tasks.WithLabelValues(t.Name, metrics.ResultOk).Inc()
		if err := s.repo.Tasks().CompleteTask(ctx, t.Id, s.clock.Now()); err != nil {
			slog.Default().ErrorContext(ctx, "can't complete task",
				slog.String("task_id", t.Id),
				slog.String("name", t.Name),
				slog.String("err", err.Error()),
			)
		}
		return true
	}

	final := Permanent(err) || t.Attempts >= s.c.MaxAttempts
	retryAt := s.clock.Now().Add(s.c.RetryBackoff * time.Duration(t.Attempts))
	result := metrics.ResultRetry
	if final {
		result = metrics.ResultFail
	}
	metrics.Tasks.WithLabelValues(t.Name, result).Inc()
	slog.Default().WarnContext(ctx, "task failed",
		slog.String("task_id", t.Id),
		slog.String("name", t.Name),
		slog.Int("attempts", t.Attempts),
		slog.Bool("final", final),
		slog.String("err", err.Error()),
	)

	if err := s.repo.Tasks().FailTask(ctx, t.Id, err.Error(), retryAt, final); err != nil {
		slog.Default().ErrorContext(ctx, "can't record task failure",
			slog.String("task_id", t.Id),
			slog.String("err", err.Error()),
		)
	}
	return false
}
