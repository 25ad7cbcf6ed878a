package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/annotation"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/events"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"github.com/phrazzld/pagescan/internal/redact"
	"github.com/phrazzld/pagescan/internal/store"
)

// defaultReapBatch bounds how many stale jobs one ReapStale call fails.
const defaultReapBatch = 100

// ScanService drives the scan job state machine. Every transition locks the
// job row, so worker callbacks delivered more than once settle on one outcome.
type ScanService struct {
	tx        store.TxRunner
	pages     store.PageStore
	jobs      store.ScanJobStore
	emitter   events.EventEmitter
	recorder  Recorder
	logger    *slog.Logger
	reapBatch int
	now       func() time.Time
}

// ScanServiceOption customises a ScanService.
type ScanServiceOption func(*ScanService)

// WithRecorder sets where scan counts go.
func WithRecorder(r Recorder) ScanServiceOption {
	return func(s *ScanService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithReapBatch sets how many stale jobs one ReapStale call handles.
func WithReapBatch(n int) ScanServiceOption {
	return func(s *ScanService) {
		if n > 0 {
			s.reapBatch = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ScanServiceOption {
	return func(s *ScanService) {
		s.now = now
	}
}

// NewScanService creates a ScanService.
// It returns an error if any of the required dependencies are nil.
func NewScanService(
	tx store.TxRunner,
	pages store.PageStore,
	jobs store.ScanJobStore,
	emitter events.EventEmitter,
	logger *slog.Logger,
	opts ...ScanServiceOption,
) (*ScanService, error) {
	if tx == nil || pages == nil || jobs == nil {
		return nil, &ServiceError{
			Service:   "scan",
			Operation: "create_service",
			Message:   "tx runner, page store and scan job store are required",
		}
	}
	if emitter == nil {
		return nil, &ServiceError{Service: "scan", Operation: "create_service", Message: "eventEmitter cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &ScanService{
		tx:        tx,
		pages:     pages,
		jobs:      jobs,
		emitter:   emitter,
		recorder:  NopRecorder{},
		logger:    logger.With("component", "scan_service"),
		reapBatch: defaultReapBatch,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit creates a pending job for pageID over imageURLs. Any unresolved job
// for the page is failed as superseded in the same transaction, so the new
// job is always the page's only unresolved one.
func (s *ScanService) Submit(ctx context.Context, pageID uuid.UUID, imageURLs []string) (*domain.ScanJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(imageURLs) == 0 {
		return nil, ErrNoImages
	}
	job, err := domain.NewScanJob(pageID, imageURLs)
	if err != nil {
		return nil, err
	}

	superseded := 0
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		superseded = 0

		// The page lock serialises concurrent submits for one page.
		if _, err := s.pages.WithTx(tx).LockByID(ctx, pageID); err != nil {
			return err
		}

		jobs := s.jobs.WithTx(tx)
		unresolved, err := jobs.FindUnresolvedByPage(ctx, pageID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, prior := range unresolved {
			changed, err := prior.Supersede(now)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			if err := jobs.Update(ctx, prior); err != nil {
				return err
			}
			superseded++
			log.Info("scan job superseded",
				"job_id", prior.ID,
				"page_id", pageID,
				"superseded_by", job.ID)
		}

		return jobs.Create(ctx, job)
	})
	if err != nil {
		log.Error("failed to submit scan", "error", redact.Error(err), "page_id", pageID)
		return nil, NewScanServiceError("submit", "failed to create scan job", err)
	}

	s.recorder.ScanSubmitted()
	if superseded > 0 {
		s.recorder.ScanSuperseded(superseded)
		for i := 0; i < superseded; i++ {
			s.recorder.ScanFailed(domain.JobErrorSuperseded)
		}
	}
	log.Info("scan job submitted",
		"job_id", job.ID,
		"page_id", pageID,
		"images", len(imageURLs))

	s.emit(ctx, events.ScanSubmitted, job)
	return job, nil
}

// MarkProcessing records the worker's intake acknowledgement. Late or
// repeated acks leave the job unchanged.
func (s *ScanService) MarkProcessing(ctx context.Context, jobID uuid.UUID) (*domain.ScanJob, error) {
	job, changed, err := s.transition(ctx, "mark_processing", jobID, func(job *domain.ScanJob, now time.Time) (bool, error) {
		return job.MarkProcessing(now), nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.FromContextOrDefault(ctx, s.logger).Info("scan job processing", "job_id", jobID)
	}
	return job, nil
}

// Complete parses rawText and moves the job to done. It reports whether the
// job changed; a repeat with the same text returns changed=false and no error.
func (s *ScanService) Complete(ctx context.Context, jobID uuid.UUID, rawText string) (*domain.ScanJob, bool, error) {
	structured := annotation.Parse(rawText)

	job, changed, err := s.transition(ctx, "complete", jobID, func(job *domain.ScanJob, now time.Time) (bool, error) {
		return job.Complete(rawText, structured, now)
	})
	if err != nil {
		return nil, false, err
	}
	if !changed {
		logger.FromContextOrDefault(ctx, s.logger).Debug("duplicate completion ignored", "job_id", jobID)
		return job, false, nil
	}

	s.recorder.ScanCompleted()
	logger.FromContextOrDefault(ctx, s.logger).Info("scan job completed",
		"job_id", jobID,
		"tasks", len(structured.Tasks),
		"calendar", len(structured.Calendar),
		"notes", len(structured.Notes))
	s.emit(ctx, events.ScanCompleted, job)
	return job, true, nil
}

// Fail moves the job to failed with a recognition error. Failing an already
// failed job is a no-op.
func (s *ScanService) Fail(ctx context.Context, jobID uuid.UUID, detail string) (*domain.ScanJob, bool, error) {
	return s.fail(ctx, "fail", jobID, domain.RecognitionFailure(detail))
}

func (s *ScanService) fail(ctx context.Context, op string, jobID uuid.UUID, jobErr domain.JobError) (*domain.ScanJob, bool, error) {
	job, changed, err := s.transition(ctx, op, jobID, func(job *domain.ScanJob, now time.Time) (bool, error) {
		return job.Fail(jobErr, now)
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.recorder.ScanFailed(jobErr.Kind)
		logger.FromContextOrDefault(ctx, s.logger).Info("scan job failed",
			"job_id", jobID,
			"kind", jobErr.Kind,
			"detail", jobErr.Detail)
	}
	return job, changed, nil
}

// transition locks the job, applies fn and persists the job if fn changed it.
func (s *ScanService) transition(
	ctx context.Context,
	op string,
	jobID uuid.UUID,
	fn func(job *domain.ScanJob, now time.Time) (bool, error),
) (*domain.ScanJob, bool, error) {
	var job *domain.ScanJob
	var changed bool

	err := s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		jobs := s.jobs.WithTx(tx)
		var err error
		job, err = jobs.LockByID(ctx, jobID)
		if err != nil {
			return err
		}
		changed, err = fn(job, s.now())
		if err != nil || !changed {
			return err
		}
		return jobs.Update(ctx, job)
	})
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("scan job transition rejected",
			"operation", op,
			"job_id", jobID,
			"error", redact.Error(err))
		return nil, false, NewScanServiceError(op, "failed to transition scan job", err)
	}
	return job, changed, nil
}

// Status returns the page's unresolved job, or its most recent one.
func (s *ScanService) Status(ctx context.Context, pageID uuid.UUID) (*domain.ScanJob, error) {
	job, err := s.jobs.GetLatestByPage(ctx, pageID)
	if err != nil {
		return nil, NewScanServiceError("status", "failed to load scan job", err)
	}
	return job, nil
}

// GetJob returns a job by id.
func (s *ScanService) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.ScanJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, NewScanServiceError("get_job", "failed to load scan job", err)
	}
	return job, nil
}

// ReapStale fails unresolved jobs not updated for olderThan with a timeout
// error and returns how many it failed. Each job is re-checked under its row
// lock, so a job resolved meanwhile is left alone.
func (s *ScanService) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	cutoff := s.now().Add(-olderThan)
	stale, err := s.jobs.FindStale(ctx, cutoff, s.reapBatch)
	if err != nil {
		return 0, NewScanServiceError("reap_stale", "failed to find stale jobs", err)
	}

	reaped := 0
	for _, candidate := range stale {
		jobErr := domain.JobError{
			Kind:   domain.JobErrorTimeout,
			Detail: "no result within " + olderThan.String(),
		}
		_, changed, err := s.transition(ctx, "reap_stale", candidate.ID, func(job *domain.ScanJob, now time.Time) (bool, error) {
			if job.IsTerminal() || job.UpdatedAt.After(cutoff) {
				return false, nil
			}
			return job.Fail(jobErr, now)
		})
		if err != nil {
			log.Error("failed to reap stale job", "job_id", candidate.ID, "error", redact.Error(err))
			continue
		}
		if changed {
			reaped++
			s.recorder.ScanFailed(domain.JobErrorTimeout)
		}
	}

	if reaped > 0 {
		log.Info("stale scan jobs timed out", "count", reaped, "cutoff", cutoff)
	}
	return reaped, nil
}

// emit publishes a job event. The job is already committed, so a failure is
// logged rather than returned.
func (s *ScanService) emit(ctx context.Context, eventType string, job *domain.ScanJob) {
	event, err := events.NewScanJobEvent(eventType, job.ID, job.PageID)
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to emit scan event",
			"event_type", eventType,
			"job_id", job.ID,
			"error", redact.Error(err))
	}
}
