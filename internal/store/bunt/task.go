package bunt

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/tidwall/buntdb"
)

type taskStore struct {
	*Store
}

func (s *Store) Tasks() dependency.Tasks {
	return &taskStore{
		Store: s,
	}
}

func taskKey(id string) string { return "task:" + id }

// taskDueKey indexes pending tasks by the earliest time a worker may take them.
func taskDueKey(t *entity.Task) string {
	at := t.RunAt
	if t.LockedUntil.Valid && t.LockedUntil.Time.After(at) {
		at = t.LockedUntil.Time
	}
	return "taskdue:" + stamp(at) + ":" + t.Id
}

func (s *Store) AddTask(ctx context.Context, ti *entity.TaskInsert) (string, error) {
	now := time.Now().UTC()
	t := &entity.Task{
		Id:         uuid.NewString(),
		TaskInsert: *ti,
		Status:     entity.TaskPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.update(func(tx *buntdb.Tx) error {
		if err := insertJSON(tx, taskKey(t.Id), t); err != nil {
			return err
		}
		_, _, err := tx.Set(taskDueKey(t), t.Id, nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("can't insert task: %w", err)
	}
	return t.Id, nil
}

func (s *Store) GetTaskById(ctx context.Context, id string) (*entity.Task, error) {
	t := &entity.Task{}
	err := s.view(func(tx *buntdb.Tx) error {
		return getJSON(tx, taskKey(id), t)
	})
	if err != nil {
		return nil, fmt.Errorf("can't get task: %w", err)
	}
	return t, nil
}

func (s *Store) AcquireDueTasks(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entity.Task, error) {
	var tasks []entity.Task
	err := s.update(func(tx *buntdb.Tx) error {
		var ids []string
		err := ascendBefore(tx, "taskdue:", now.Add(time.Nanosecond), func(_, id string) bool {
			ids = append(ids, id)
			return limit <= 0 || len(ids) < limit
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			t := entity.Task{}
			if err := getJSON(tx, taskKey(id), &t); err != nil {
				return fmt.Errorf("task %s: %w", id, err)
			}
			if err := deleteKey(tx, taskDueKey(&t)); err != nil {
				return err
			}
			t.Attempts++
			t.LockedUntil = sql.NullTime{Time: now.Add(lease), Valid: true}
			t.UpdatedAt = now
			if err := setJSON(tx, taskKey(id), &t); err != nil {
				return err
			}
			// an expired lease makes the task due again
			if _, _, err := tx.Set(taskDueKey(&t), t.Id, nil); err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("can't acquire due tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) CompleteTask(ctx context.Context, id string, at time.Time) error {
	err := s.finishTask(id, func(t *entity.Task) {
		t.Status = entity.TaskDone
		t.LastError = sql.NullString{}
		t.UpdatedAt = at
	})
	if err != nil {
		return fmt.Errorf("can't complete task: %w", err)
	}
	return nil
}

func (s *Store) FailTask(ctx context.Context, id string, errMsg string, retryAt time.Time, final bool) error {
	err := s.finishTask(id, func(t *entity.Task) {
		t.Status = entity.TaskPending
		if final {
			t.Status = entity.TaskFailed
		}
		t.RunAt = retryAt
		t.LastError = sql.NullString{String: errMsg, Valid: true}
		t.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		return fmt.Errorf("can't fail task: %w", err)
	}
	return nil
}

// finishTask releases the lease, applies fn and reindexes the task if it
// stays pending.
func (s *Store) finishTask(id string, fn func(t *entity.Task)) error {
	return s.update(func(tx *buntdb.Tx) error {
		t := &entity.Task{}
		if err := getJSON(tx, taskKey(id), t); err != nil {
			return err
		}
		if t.Status == entity.TaskPending {
			if err := deleteKey(tx, taskDueKey(t)); err != nil {
				return err
			}
		}
		t.LockedUntil = sql.NullTime{}
		fn(t)
		if err := setJSON(tx, taskKey(id), t); err != nil {
			return err
		}
		if t.Status == entity.TaskPending {
			_, _, err := tx.Set(taskDueKey(t), t.Id, nil)
			return err
		}
		return nil
	})
}
