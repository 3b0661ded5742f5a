package entity

import (
	"database/sql"
	"time"
)

type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// TaskInsert is a deferred invocation of a named operation.
type TaskInsert struct {
	Name    string    `db:"name" json:"name"`
	Payload []byte    `db:"payload" json:"payload"`
	RunAt   time.Time `db:"run_at" json:"run_at"`
}

// Task represents the task table
type Task struct {
	Id string `db:"id" json:"id"`
	TaskInsert
	Attempts    int            `db:"attempts" json:"attempts"`
	Status      TaskStatus     `db:"status" json:"status"`
	LockedUntil sql.NullTime   `db:"locked_until" json:"locked_until"`
	LastError   sql.NullString `db:"last_error" json:"last_error"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}
