package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/events"
	"github.com/phrazzld/pagescan/internal/platform/logger"
)

// TaskCreator builds a task of the given type for a job.
type TaskCreator interface {
	CreateTask(taskType string, jobID uuid.UUID) (Task, error)
}

// TaskSubmitter accepts tasks for background execution.
type TaskSubmitter interface {
	Submit(ctx context.Context, task Task) error
}

// TaskFactoryEventHandler implements events.EventHandler by turning scan
// events into submitted tasks.
type TaskFactoryEventHandler struct {
	taskFactory TaskCreator
	taskRunner  TaskSubmitter
	logger      *slog.Logger
}

// NewTaskFactoryEventHandler creates a new event handler that uses the given task factory
// to create tasks, and submits them to the provided task runner.
func NewTaskFactoryEventHandler(
	taskFactory TaskCreator,
	taskRunner TaskSubmitter,
	log *slog.Logger,
) *TaskFactoryEventHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TaskFactoryEventHandler{
		taskFactory: taskFactory,
		taskRunner:  taskRunner,
		logger:      log.With("component", "task_factory_event_handler"),
	}
}

// HandleEvent creates and submits the task matching the event type.
// Events with no matching task are ignored.
func (h *TaskFactoryEventHandler) HandleEvent(
	ctx context.Context,
	event *events.TaskRequestEvent,
) error {
	log := logger.FromContextOrDefault(ctx, h.logger).With("event_id", event.ID, "event_type", event.Type)

	taskType := TaskTypeForEvent(event.Type)
	if taskType == "" {
		log.Debug("ignoring event with unsupported type")
		return nil
	}

	payload, err := event.ScanJob()
	if err != nil {
		log.Error("failed to unmarshal payload", "error", err)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.JobID == uuid.Nil {
		log.Error("event carries no job id")
		return fmt.Errorf("invalid event payload: %w", ErrEmptyJobID)
	}

	task, err := h.taskFactory.CreateTask(taskType, payload.JobID)
	if err != nil {
		log.Error("failed to create task", "error", err, "job_id", payload.JobID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.taskRunner.Submit(ctx, task); err != nil {
		log.Error("failed to submit task",
			"error", err,
			"task_id", task.ID(),
			"job_id", payload.JobID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	log.Info("task created and submitted",
		"task_id", task.ID(),
		"task_type", taskType,
		"job_id", payload.JobID)
	return nil
}

var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)
