// Package taskqueue provides a durable, at-least-once deferred job store
// with idempotent keyed scheduling and claim/lease semantics, plus the poll
// loop that dispatches claimed tasks to type-specific handlers.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type identifies the handler family for a task.
type Type string

const (
	TypeScan     Type = "scan"
	TypeExport   Type = "export"
	TypeModelRun Type = "model-run"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned when a task id is unknown.
var ErrNotFound = errors.New("task not found")

// Task is a deferred unit of work. TaskKey, when set, is unique across live
// tasks so the same logical future job is scheduled at most once.
type Task struct {
	ID        uuid.UUID       `json:"id"`
	TaskKey   *string         `json:"task_key,omitempty"`
	Type      Type            `json:"task_type"`
	Status    Status          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	RunAt     time.Time       `json:"run_at"`
	Attempts  int             `json:"attempts"`
	LastError *string         `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Repository is the durable task store. Fail applies the retry policy:
// below the attempt cap the task returns to pending with run_at pushed
// forward by the store's retry delay; at the cap it becomes terminally
// failed.
type Repository interface {
	// Enqueue inserts a task. When task.TaskKey is set and a task with the
	// same key already exists, the insert is a silent no-op and created is
	// false.
	Enqueue(ctx context.Context, task *Task) (created bool, err error)
	// ClaimBatch atomically selects up to n pending tasks whose run_at has
	// passed, marks them running, increments attempts, and returns them for
	// exclusive processing.
	ClaimBatch(ctx context.Context, n int, now time.Time) ([]*Task, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, taskErr string) error
	// Get is for operational inspection and tests.
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
}

// New builds a pending task. Payload must already be JSON-encoded; use
// EncodePayload for struct payloads.
func New(taskType Type, payload json.RawMessage, runAt time.Time, taskKey string) *Task {
	t := &Task{
		ID:      uuid.New(),
		Type:    taskType,
		Status:  StatusPending,
		Payload: payload,
		RunAt:   runAt,
	}
	if taskKey != "" {
		t.TaskKey = &taskKey
	}
	return t
}

// EncodePayload marshals a payload struct for Enqueue.
func EncodePayload(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}
