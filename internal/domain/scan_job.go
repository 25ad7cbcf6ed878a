package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScanJobState is the lifecycle state of a scan job.
type ScanJobState string

// Scan job states. Done and Failed are terminal.
const (
	ScanJobStatePending    ScanJobState = "pending"
	ScanJobStateProcessing ScanJobState = "processing"
	ScanJobStateDone       ScanJobState = "done"
	ScanJobStateFailed     ScanJobState = "failed"
)

// IsValid reports whether s is a known state.
func (s ScanJobState) IsValid() bool {
	switch s {
	case ScanJobStatePending, ScanJobStateProcessing, ScanJobStateDone, ScanJobStateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition may leave s.
func (s ScanJobState) IsTerminal() bool {
	return s == ScanJobStateDone || s == ScanJobStateFailed
}

// JobErrorKind classifies why a job failed.
type JobErrorKind string

const (
	// JobErrorRecognition means the recognition worker reported an error.
	JobErrorRecognition JobErrorKind = "recognition"
	// JobErrorSuperseded means a newer submission for the page replaced the job.
	JobErrorSuperseded JobErrorKind = "superseded"
	// JobErrorTimeout means the job sat unresolved past the configured timeout.
	JobErrorTimeout JobErrorKind = "timeout"
)

// IsValid reports whether k is a known kind.
func (k JobErrorKind) IsValid() bool {
	switch k {
	case JobErrorRecognition, JobErrorSuperseded, JobErrorTimeout:
		return true
	default:
		return false
	}
}

// JobError is the failure detail carried by a failed job.
type JobError struct {
	Kind   JobErrorKind `json:"kind"`
	Detail string       `json:"detail"`
}

// Error implements the error interface so a recognition failure can travel
// as an error value.
func (e *JobError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// RecognitionFailure builds the JobError for a worker-reported error.
func RecognitionFailure(detail string) JobError {
	if detail == "" {
		detail = "recognition worker reported an error"
	}
	return JobError{Kind: JobErrorRecognition, Detail: detail}
}

// RoutingState tracks whether a done job's content has been routed.
type RoutingState string

const (
	RoutingStateNone    RoutingState = "none"
	RoutingStatePending RoutingState = "pending"
	RoutingStateRouted  RoutingState = "routed"
	RoutingStateFailed  RoutingState = "failed"
)

// IsValid reports whether r is a known routing state.
func (r RoutingState) IsValid() bool {
	switch r {
	case RoutingStateNone, RoutingStatePending, RoutingStateRouted, RoutingStateFailed:
		return true
	default:
		return false
	}
}

// ScanJob is one recognition attempt for a page.
//
// RawText and Structured are set only in the done state; Error only in the
// failed state. Terminal jobs never change state again.
type ScanJob struct {
	ID           uuid.UUID         `json:"id"`
	PageID       uuid.UUID         `json:"page_id"`
	State        ScanJobState      `json:"state"`
	ImageURLs    []string          `json:"image_urls"`
	RawText      *string           `json:"raw_text,omitempty"`
	Structured   *StructuredOutput `json:"structured_output,omitempty"`
	Error        *JobError         `json:"error,omitempty"`
	RoutingState RoutingState      `json:"routing_state"`
	RoutingError string            `json:"routing_error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewScanJob creates a pending job for pageID over the given images.
func NewScanJob(pageID uuid.UUID, imageURLs []string) (*ScanJob, error) {
	now := time.Now().UTC()
	urls := make([]string, len(imageURLs))
	copy(urls, imageURLs)

	j := &ScanJob{
		ID:           uuid.New(),
		PageID:       pageID,
		State:        ScanJobStatePending,
		ImageURLs:    urls,
		RoutingState: RoutingStateNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return j, nil
}

// Validate checks that the job matches one of the recognised shapes.
func (j *ScanJob) Validate() error {
	if j.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if j.PageID == uuid.Nil {
		return NewValidationError("page_id", "cannot be empty", ErrInvalidID)
	}
	if len(j.ImageURLs) == 0 {
		return NewValidationError("image_urls", "must contain at least one image", nil)
	}
	if !j.State.IsValid() {
		return NewValidationError("state", "is not a known state", ErrInvalidShape)
	}
	if !j.RoutingState.IsValid() {
		return NewValidationError("routing_state", "is not a known routing state", ErrInvalidShape)
	}

	switch j.State {
	case ScanJobStateDone:
		if j.RawText == nil || j.Structured == nil || j.Error != nil {
			return NewValidationError("state", "done job must carry text and no error", ErrInvalidShape)
		}
	case ScanJobStateFailed:
		if j.Error == nil || !j.Error.Kind.IsValid() || j.RawText != nil || j.Structured != nil {
			return NewValidationError("state", "failed job must carry a known error and no text", ErrInvalidShape)
		}
	default:
		if j.RawText != nil || j.Structured != nil || j.Error != nil {
			return NewValidationError("state", "unresolved job cannot carry a result", ErrInvalidShape)
		}
	}
	return nil
}

// IsTerminal reports whether the job has resolved.
func (j *ScanJob) IsTerminal() bool {
	return j.State.IsTerminal()
}

// MarkProcessing records that the worker acknowledged intake. It is a no-op
// for jobs already processing or resolved, since acks may arrive late.
func (j *ScanJob) MarkProcessing(now time.Time) bool {
	if j.State != ScanJobStatePending {
		return false
	}
	j.State = ScanJobStateProcessing
	j.UpdatedAt = now.UTC()
	return true
}

// Complete moves the job to done with the recognised text and its parsed
// output. Completing an already-done job with the same text is a no-op and
// returns false; any other move out of a terminal state is
// ErrInvalidTransition.
func (j *ScanJob) Complete(rawText string, structured StructuredOutput, now time.Time) (bool, error) {
	if j.State == ScanJobStateDone && j.RawText != nil && *j.RawText == rawText {
		return false, nil
	}
	if j.IsTerminal() {
		return false, fmt.Errorf("%w: cannot complete job in state %s", ErrInvalidTransition, j.State)
	}

	text := rawText
	out := structured.normalized()
	j.State = ScanJobStateDone
	j.RawText = &text
	j.Structured = &out
	j.RoutingState = RoutingStatePending
	j.RoutingError = ""
	j.UpdatedAt = now.UTC()
	return true, nil
}

// Fail moves the job to failed. Failing an already-failed job is a no-op and
// keeps the original error; failing a done job is ErrInvalidTransition.
func (j *ScanJob) Fail(jobErr JobError, now time.Time) (bool, error) {
	if !jobErr.Kind.IsValid() {
		return false, NewValidationError("error.kind", "is not a known kind", ErrInvalidShape)
	}
	if j.State == ScanJobStateFailed {
		return false, nil
	}
	if j.IsTerminal() {
		return false, fmt.Errorf("%w: cannot fail job in state %s", ErrInvalidTransition, j.State)
	}

	e := jobErr
	j.State = ScanJobStateFailed
	j.Error = &e
	j.UpdatedAt = now.UTC()
	return true, nil
}

// Supersede fails an unresolved job because a newer submission replaced it.
func (j *ScanJob) Supersede(now time.Time) (bool, error) {
	return j.Fail(JobError{Kind: JobErrorSuperseded, Detail: "superseded"}, now)
}

// MarkRouted records the outcome of routing a done job. routeErr nil means
// success. The scan state is never touched.
func (j *ScanJob) MarkRouted(routeErr error, now time.Time) error {
	if j.State != ScanJobStateDone {
		return fmt.Errorf("%w: only done jobs are routed, job is %s", ErrInvalidTransition, j.State)
	}
	if routeErr != nil {
		j.RoutingState = RoutingStateFailed
		j.RoutingError = routeErr.Error()
	} else {
		j.RoutingState = RoutingStateRouted
		j.RoutingError = ""
	}
	j.UpdatedAt = now.UTC()
	return nil
}
