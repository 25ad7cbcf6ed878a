package task

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	// TaskTypeRecognitionDispatch hands a pending scan job to the recognizer.
	TaskTypeRecognitionDispatch = "recognition_dispatch"

	// TaskTypeContentRouting routes the structured output of a done job.
	TaskTypeContentRouting = "content_routing"
)

// ErrNotRehydrated is returned when a task loaded from storage is executed
// before being rebuilt into its concrete type.
var ErrNotRehydrated = errors.New("task loaded from storage has not been rehydrated")

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Status returns the current task status
	Status() TaskStatus

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// TaskStore defines the interface for persisting tasks
type TaskStore interface {
	// SaveTask persists a task to the database
	SaveTask(ctx context.Context, task Task) error

	// UpdateTaskStatus updates the status of a task
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error

	// GetPendingTasks retrieves all tasks with "pending" status
	GetPendingTasks(ctx context.Context) ([]Task, error)

	// GetProcessingTasks retrieves tasks with "processing" status.
	// If olderThan is non-zero, only returns tasks that have been in this state
	// longer than the specified duration
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]Task, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}

// Rehydrator rebuilds an executable task from a stored one.
type Rehydrator interface {
	Rehydrate(stored Task) (Task, error)
}

// Record is a task as loaded from storage. It carries everything needed to
// rebuild the concrete task but cannot run by itself.
type Record struct {
	TaskID       uuid.UUID
	TaskType     string
	Data         []byte
	State        TaskStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ID returns the task's unique identifier
func (r *Record) ID() uuid.UUID { return r.TaskID }

// Type returns the task type identifier
func (r *Record) Type() string { return r.TaskType }

// Payload returns the stored payload
func (r *Record) Payload() []byte { return r.Data }

// Status returns the stored status
func (r *Record) Status() TaskStatus { return r.State }

// Execute always fails with ErrNotRehydrated.
func (r *Record) Execute(ctx context.Context) error {
	return ErrNotRehydrated
}
