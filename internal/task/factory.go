package task

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/events"
)

// ScanTaskFactory builds scan tasks from events and from stored records.
type ScanTaskFactory struct {
	jobs       JobSource
	dispatcher Dispatcher
	router     JobRouter
	logger     *slog.Logger
}

// NewScanTaskFactory creates a factory for both scan task types.
func NewScanTaskFactory(
	jobs JobSource,
	dispatcher Dispatcher,
	router JobRouter,
	logger *slog.Logger,
) (*ScanTaskFactory, error) {
	if jobs == nil {
		return nil, ErrNilJobSource
	}
	if dispatcher == nil {
		return nil, ErrNilDispatcher
	}
	if router == nil {
		return nil, ErrNilRouter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanTaskFactory{
		jobs:       jobs,
		dispatcher: dispatcher,
		router:     router,
		logger:     logger.With("component", "scan_task_factory"),
	}, nil
}

// TaskTypeForEvent names the task an event type produces, or "" if none.
func TaskTypeForEvent(eventType string) string {
	switch eventType {
	case events.ScanSubmitted:
		return TaskTypeRecognitionDispatch
	case events.ScanCompleted:
		return TaskTypeContentRouting
	default:
		return ""
	}
}

// CreateTask builds a fresh task of taskType for jobID.
func (f *ScanTaskFactory) CreateTask(taskType string, jobID uuid.UUID) (Task, error) {
	return f.build(uuid.Nil, taskType, jobID)
}

// Rehydrate implements Rehydrator. The rebuilt task keeps the stored ID.
func (f *ScanTaskFactory) Rehydrate(stored Task) (Task, error) {
	jobID, err := decodeScanJobPayload(stored.Payload())
	if err != nil {
		return nil, err
	}
	return f.build(stored.ID(), stored.Type(), jobID)
}

func (f *ScanTaskFactory) build(id uuid.UUID, taskType string, jobID uuid.UUID) (Task, error) {
	switch taskType {
	case TaskTypeRecognitionDispatch:
		t, err := NewRecognitionDispatchTask(id, jobID, f.jobs, f.dispatcher, f.logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case TaskTypeContentRouting:
		t, err := NewContentRoutingTask(id, jobID, f.router, f.logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}
}

var _ Rehydrator = (*ScanTaskFactory)(nil)
