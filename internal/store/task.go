package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

type taskStore struct {
	*MYSQLStore
}

func (ms *MYSQLStore) Tasks() dependency.Tasks {
	return &taskStore{
		MYSQLStore: ms,
	}
}

func (ms *MYSQLStore) AddTask(ctx context.Context, t *entity.TaskInsert) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	query := `
	INSERT INTO task (id, name, payload, run_at, status, created_at, updated_at)
	VALUES (:id, :name, :payload, :runAt, :status, :createdAt, :updatedAt)`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"id":        id,
		"name":      t.Name,
		"payload":   t.Payload,
		"runAt":     t.RunAt,
		"status":    entity.TaskPending,
		"createdAt": now,
		"updatedAt": now,
	})
	if err != nil {
		return "", fmt.Errorf("can't insert task: %w", err)
	}
	return id, nil
}

func (ms *MYSQLStore) GetTaskById(ctx context.Context, id string) (*entity.Task, error) {
	t, err := QueryNamedOne[entity.Task](ctx, ms.DB(), `SELECT * FROM task WHERE id = :id`, map[string]any{
		"id": id,
	})
	if err != nil {
		return nil, fmt.Errorf("can't get task: %w", err)
	}
	return &t, nil
}

// AcquireDueTasks leases due tasks to the caller. Rows locked by a concurrent
// worker are skipped, so two workers never lease the same task.
func (ms *MYSQLStore) AcquireDueTasks(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entity.Task, error) {
	if !ms.InTx() {
		var tasks []entity.Task
		err := ms.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
			var err error
			tasks, err = rep.Tasks().AcquireDueTasks(ctx, now, lease, limit)
			return err
		})
		return tasks, err
	}

	query := `
	SELECT * FROM task
	WHERE status = :status AND run_at <= :now
		AND (locked_until IS NULL OR locked_until < :now)
	ORDER BY run_at
	LIMIT :limit
	FOR UPDATE SKIP LOCKED`
	tasks, err := QueryListNamed[entity.Task](ctx, ms.DB(), query, map[string]any{
		"status": entity.TaskPending,
		"now":    now,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("can't select due tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(tasks))
	lockedUntil := now.Add(lease)
	for i := range tasks {
		ids = append(ids, tasks[i].Id)
		tasks[i].Attempts++
		tasks[i].LockedUntil = sql.NullTime{Time: lockedUntil, Valid: true}
	}
	query = `
	UPDATE task SET
		attempts = attempts + 1,
		locked_until = :lockedUntil,
		updated_at = :now
	WHERE id IN (:ids)`
	err = ExecNamed(ctx, ms.DB(), query, map[string]any{
		"lockedUntil": lockedUntil,
		"now":         now,
		"ids":         ids,
	})
	if err != nil {
		return nil, fmt.Errorf("can't lease tasks: %w", err)
	}
	return tasks, nil
}

func (ms *MYSQLStore) CompleteTask(ctx context.Context, id string, at time.Time) error {
	query := `
	UPDATE task SET
		status = :status,
		locked_until = NULL,
		last_error = NULL,
		updated_at = :at
	WHERE id = :id`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"id":     id,
		"status": entity.TaskDone,
		"at":     at,
	})
	if err != nil {
		return fmt.Errorf("can't complete task: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) FailTask(ctx context.Context, id string, errMsg string, retryAt time.Time, final bool) error {
	status := entity.TaskPending
	if final {
		status = entity.TaskFailed
	}
	query := `
	UPDATE task SET
		status = :status,
		run_at = :retryAt,
		locked_until = NULL,
		last_error = :errMsg,
		updated_at = CURRENT_TIMESTAMP(6)
	WHERE id = :id`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"id":      id,
		"status":  status,
		"retryAt": retryAt,
		"errMsg":  errMsg,
	})
	if err != nil {
		return fmt.Errorf("can't fail task: %w", err)
	}
	return nil
}
