package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the scan service.
const (
	// ScanSubmitted is emitted after a new job is committed in pending state.
	ScanSubmitted = "scan.submitted"

	// ScanCompleted is emitted after a job transitions to done.
	ScanCompleted = "scan.completed"
)

// TaskRequestEvent represents a request to create a background task.
// It contains the necessary information for task creation without
// direct dependencies on the task package.
type TaskRequestEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates what happened, e.g. ScanSubmitted
	Type string `json:"type"`

	// Payload contains the event data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// ScanJobPayload identifies the job an event refers to.
type ScanJobPayload struct {
	JobID  uuid.UUID `json:"job_id"`
	PageID uuid.UUID `json:"page_id"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *TaskRequestEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// ScanJob decodes the payload as a ScanJobPayload.
func (e *TaskRequestEvent) ScanJob() (ScanJobPayload, error) {
	var p ScanJobPayload
	err := e.UnmarshalPayload(&p)
	return p, err
}

// NewTaskRequestEvent creates a new TaskRequestEvent with the specified type and payload.
func NewTaskRequestEvent(eventType string, payload interface{}) (*TaskRequestEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewScanJobEvent builds an event of eventType for a job.
func NewScanJobEvent(eventType string, jobID, pageID uuid.UUID) (*TaskRequestEvent, error) {
	return NewTaskRequestEvent(eventType, ScanJobPayload{JobID: jobID, PageID: pageID})
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
