package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
)

// Common errors
var (
	ErrNilJobSource  = errors.New("job source cannot be nil")
	ErrNilDispatcher = errors.New("dispatcher cannot be nil")
	ErrNilRouter     = errors.New("router cannot be nil")
	ErrEmptyJobID    = errors.New("job ID cannot be empty")
)

// JobSource loads scan jobs for background tasks.
type JobSource interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.ScanJob, error)
}

// Dispatcher hands a pending job to a recognition worker. The worker reports
// back through the scan service, not through the return value.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *domain.ScanJob) error
}

// JobRouter routes the structured output of a done job.
type JobRouter interface {
	RouteJob(ctx context.Context, jobID uuid.UUID) error
}

// scanJobPayload is the serialized data stored with both scan task types.
type scanJobPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

func encodeScanJobPayload(jobID uuid.UUID) []byte {
	// a struct of one UUID always marshals
	data, _ := json.Marshal(scanJobPayload{JobID: jobID})
	return data
}

func decodeScanJobPayload(data []byte) (uuid.UUID, error) {
	var p scanJobPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return uuid.Nil, fmt.Errorf("invalid task payload: %w", err)
	}
	if p.JobID == uuid.Nil {
		return uuid.Nil, ErrEmptyJobID
	}
	return p.JobID, nil
}

// RecognitionDispatchTask sends a pending job to the recognizer.
type RecognitionDispatchTask struct {
	id         uuid.UUID
	jobID      uuid.UUID
	jobs       JobSource
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewRecognitionDispatchTask creates a dispatch task. A nil id gets a fresh one.
func NewRecognitionDispatchTask(
	id uuid.UUID,
	jobID uuid.UUID,
	jobs JobSource,
	dispatcher Dispatcher,
	logger *slog.Logger,
) (*RecognitionDispatchTask, error) {
	if jobs == nil {
		return nil, ErrNilJobSource
	}
	if dispatcher == nil {
		return nil, ErrNilDispatcher
	}
	if jobID == uuid.Nil {
		return nil, ErrEmptyJobID
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecognitionDispatchTask{
		id:         id,
		jobID:      jobID,
		jobs:       jobs,
		dispatcher: dispatcher,
		logger:     logger.With("task_type", TaskTypeRecognitionDispatch, "job_id", jobID),
	}, nil
}

// ID returns the task's unique identifier
func (t *RecognitionDispatchTask) ID() uuid.UUID { return t.id }

// Type returns TaskTypeRecognitionDispatch
func (t *RecognitionDispatchTask) Type() string { return TaskTypeRecognitionDispatch }

// Payload returns the job reference
func (t *RecognitionDispatchTask) Payload() []byte { return encodeScanJobPayload(t.jobID) }

// Status is always pending; the runner tracks progress in the store.
func (t *RecognitionDispatchTask) Status() TaskStatus { return TaskStatusPending }

// JobID returns the job this task dispatches.
func (t *RecognitionDispatchTask) JobID() uuid.UUID { return t.jobID }

// Execute dispatches the job if it is still pending. A job that moved on
// (acked, superseded or timed out) is skipped.
func (t *RecognitionDispatchTask) Execute(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, t.logger)

	job, err := t.jobs.GetJob(ctx, t.jobID)
	if err != nil {
		return fmt.Errorf("failed to load scan job: %w", err)
	}
	if job.State != domain.ScanJobStatePending {
		log.Info("skipping dispatch, job is no longer pending",
			"job_id", t.jobID,
			"state", job.State)
		return nil
	}

	if err := t.dispatcher.Dispatch(ctx, job); err != nil {
		return fmt.Errorf("failed to dispatch scan job: %w", err)
	}
	log.Info("scan job dispatched", "job_id", t.jobID, "images", len(job.ImageURLs))
	return nil
}

// ContentRoutingTask routes a done job's content to its owner.
type ContentRoutingTask struct {
	id     uuid.UUID
	jobID  uuid.UUID
	router JobRouter
	logger *slog.Logger
}

// NewContentRoutingTask creates a routing task. A nil id gets a fresh one.
func NewContentRoutingTask(
	id uuid.UUID,
	jobID uuid.UUID,
	router JobRouter,
	logger *slog.Logger,
) (*ContentRoutingTask, error) {
	if router == nil {
		return nil, ErrNilRouter
	}
	if jobID == uuid.Nil {
		return nil, ErrEmptyJobID
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentRoutingTask{
		id:     id,
		jobID:  jobID,
		router: router,
		logger: logger.With("task_type", TaskTypeContentRouting, "job_id", jobID),
	}, nil
}

// ID returns the task's unique identifier
func (t *ContentRoutingTask) ID() uuid.UUID { return t.id }

// Type returns TaskTypeContentRouting
func (t *ContentRoutingTask) Type() string { return TaskTypeContentRouting }

// Payload returns the job reference
func (t *ContentRoutingTask) Payload() []byte { return encodeScanJobPayload(t.jobID) }

// Status is always pending; the runner tracks progress in the store.
func (t *ContentRoutingTask) Status() TaskStatus { return TaskStatusPending }

// JobID returns the job this task routes.
func (t *ContentRoutingTask) JobID() uuid.UUID { return t.jobID }

// Execute routes the job.
func (t *ContentRoutingTask) Execute(ctx context.Context) error {
	if err := t.router.RouteJob(ctx, t.jobID); err != nil {
		return fmt.Errorf("failed to route scan job content: %w", err)
	}
	logger.FromContextOrDefault(ctx, t.logger).Info("scan job content routed", "job_id", t.jobID)
	return nil
}
