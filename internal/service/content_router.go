package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"github.com/phrazzld/pagescan/internal/redact"
	"github.com/phrazzld/pagescan/internal/store"
)

// Routing outcome labels passed to Recorder.ContentRouted.
const (
	routingOutcomeRouted = "routed"
	routingOutcomeOwner  = "owner_resolution"
	routingOutcomeError  = "error"
	routingOutcomeStale  = "stale"
)

// errNewerScanRouted is recorded on a done job whose page already shows the
// content of a later scan.
var errNewerScanRouted = errors.New("a newer scan of the page has already been routed")

// RoutingResult counts what one routing run wrote.
type RoutingResult struct {
	TaskItems      int `json:"task_items"`
	CalendarEvents int `json:"calendar_events"`
	Notes          int `json:"notes"`
	Pruned         int `json:"pruned"`
}

// ContentRouter writes a done job's structured output into its owner's task
// list, calendar drafts and page transcript.
type ContentRouter struct {
	tx        store.TxRunner
	notebooks store.NotebookStore
	pages     store.PageStore
	jobs      store.ScanJobStore
	content   store.ContentStore
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewContentRouter creates a ContentRouter. A nil recorder discards counts.
func NewContentRouter(
	tx store.TxRunner,
	notebooks store.NotebookStore,
	pages store.PageStore,
	jobs store.ScanJobStore,
	content store.ContentStore,
	recorder Recorder,
	logger *slog.Logger,
) (*ContentRouter, error) {
	if tx == nil || notebooks == nil || pages == nil || jobs == nil || content == nil {
		return nil, &ServiceError{
			Service:   "routing",
			Operation: "create_service",
			Message:   "tx runner and notebook, page, scan job and content stores are required",
		}
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentRouter{
		tx:        tx,
		notebooks: notebooks,
		pages:     pages,
		jobs:      jobs,
		content:   content,
		recorder:  recorder,
		logger:    logger.With("component", "content_router"),
		now:       time.Now,
	}, nil
}

// Route writes structured into ownerID's collections for the given page and
// job. Task items and events are keyed by (job, position), so routing the
// same output twice leaves one copy. It returns ErrOwnerResolution when the
// notebook is missing or belongs to someone else; nothing is written then.
func (r *ContentRouter) Route(
	ctx context.Context,
	ownerID, notebookID, pageID, jobID uuid.UUID,
	structured domain.StructuredOutput,
) (RoutingResult, error) {
	var result RoutingResult
	err := r.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		result, err = r.route(ctx, tx, ownerID, notebookID, pageID, jobID, structured)
		return err
	})
	r.record(result, err)
	if err != nil {
		return RoutingResult{}, newServiceError("routing", "route", "failed to route content", err)
	}
	return result, nil
}

// RouteJob routes a done job to the owner of its page's notebook and records
// the outcome on the job. Jobs that are not done are skipped. An owner
// resolution failure, or a newer scan of the page having been routed first,
// is recorded on the job and not returned. Any other failure is recorded on
// the job as well and returned. The scan state stays done either way.
//
// The page row is locked for the duration, so routings of one page run one
// at a time.
func (r *ContentRouter) RouteJob(ctx context.Context, jobID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, r.logger).With("job_id", jobID)

	var result RoutingResult
	var routeErr error
	skipped := false

	err := r.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		result, routeErr, skipped = RoutingResult{}, nil, false

		jobs := r.jobs.WithTx(tx)
		job, err := jobs.LockByID(ctx, jobID)
		if err != nil {
			return err
		}
		if job.State != domain.ScanJobStateDone || job.Structured == nil {
			skipped = true
			return nil
		}

		page, err := r.pages.WithTx(tx).LockByID(ctx, job.PageID)
		if err != nil {
			return err
		}

		stale, err := r.newerScanRouted(ctx, tx, job)
		if err != nil {
			return err
		}
		if stale {
			routeErr = errNewerScanRouted
			if err := job.MarkRouted(routeErr, r.now()); err != nil {
				return err
			}
			return jobs.Update(ctx, job)
		}

		ownerID := uuid.Nil
		notebook, err := r.notebooks.WithTx(tx).GetByID(ctx, page.NotebookID)
		switch {
		case err == nil:
			ownerID = notebook.OwnerID
		case !store.IsNotFoundError(err):
			return err
		}

		result, routeErr = r.route(ctx, tx, ownerID, page.NotebookID, page.ID, job.ID, *job.Structured)
		if routeErr != nil && !errors.Is(routeErr, ErrOwnerResolution) {
			return routeErr
		}
		if err := job.MarkRouted(routeErr, r.now()); err != nil {
			return err
		}
		return jobs.Update(ctx, job)
	})
	if skipped {
		log.Info("skipping routing, job is not done")
		return nil
	}
	if err != nil {
		r.record(result, err)
		log.Error("content routing failed", "error", redact.Error(err))
		r.recordFailure(ctx, jobID, err)
		return newServiceError("routing", "route_job", "failed to route job content", err)
	}

	r.record(result, routeErr)
	switch {
	case errors.Is(routeErr, errNewerScanRouted):
		log.Info("skipping routing, a newer scan of the page was routed")
		return nil
	case routeErr != nil:
		log.Warn("content could not be attributed to an owner", "error", routeErr)
		return nil
	}
	log.Info("content routed",
		"task_items", result.TaskItems,
		"calendar_events", result.CalendarEvents,
		"notes", result.Notes,
		"pruned", result.Pruned)
	return nil
}

// newerScanRouted reports whether the page transcript already comes from a
// job created after job.
func (r *ContentRouter) newerScanRouted(ctx context.Context, tx *sql.Tx, job *domain.ScanJob) (bool, error) {
	tr, err := r.content.WithTx(tx).GetTranscript(ctx, job.PageID)
	if err != nil {
		if errors.Is(err, store.ErrTranscriptNotFound) {
			return false, nil
		}
		return false, err
	}
	if tr.JobID == job.ID {
		return false, nil
	}
	routed, err := r.jobs.WithTx(tx).GetByID(ctx, tr.JobID)
	if err != nil {
		if errors.Is(err, store.ErrScanJobNotFound) {
			return false, nil
		}
		return false, err
	}
	return routed.CreatedAt.After(job.CreatedAt), nil
}

// recordFailure marks a done job's routing failed after the routing
// transaction rolled back, so the job does not stay pending. A job that has
// since been routed is left alone.
func (r *ContentRouter) recordFailure(ctx context.Context, jobID uuid.UUID, cause error) {
	if errors.Is(cause, store.ErrScanJobNotFound) {
		return
	}
	detail := errors.New(redact.Error(cause))
	err := r.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		jobs := r.jobs.WithTx(tx)
		job, err := jobs.LockByID(ctx, jobID)
		if err != nil {
			return err
		}
		if job.State != domain.ScanJobStateDone || job.RoutingState == domain.RoutingStateRouted {
			return nil
		}
		if err := job.MarkRouted(detail, r.now()); err != nil {
			return err
		}
		return jobs.Update(ctx, job)
	})
	if err != nil {
		logger.FromContextOrDefault(ctx, r.logger).Error("failed to record routing failure",
			"job_id", jobID,
			"error", redact.Error(err))
	}
}

// route performs the writes of one routing run inside tx.
func (r *ContentRouter) route(
	ctx context.Context,
	tx *sql.Tx,
	ownerID, notebookID, pageID, jobID uuid.UUID,
	structured domain.StructuredOutput,
) (RoutingResult, error) {
	var result RoutingResult

	notebook, err := r.notebooks.WithTx(tx).GetByID(ctx, notebookID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return result, fmt.Errorf("%w: notebook %s not found", ErrOwnerResolution, notebookID)
		}
		return result, err
	}
	if ownerID == uuid.Nil || notebook.OwnerID != ownerID {
		return result, fmt.Errorf("%w: notebook %s is not owned by %s", ErrOwnerResolution, notebookID, ownerID)
	}

	content := r.content.WithTx(tx)
	target := domain.RoutingTarget{
		OwnerID:    ownerID,
		NotebookID: notebookID,
		PageID:     pageID,
		JobID:      jobID,
	}
	now := r.now()

	if result.Pruned, err = content.PruneSupersededContent(ctx, pageID, jobID); err != nil {
		return result, err
	}
	if result.TaskItems, err = content.UpsertTaskItems(ctx, domain.BuildTaskItems(target, structured.Tasks, now)); err != nil {
		return result, err
	}
	events := domain.BuildCalendarEvents(target, structured.Calendar, now)
	if result.CalendarEvents, err = content.UpsertCalendarEvents(ctx, events); err != nil {
		return result, err
	}
	if err := content.UpsertTranscript(ctx, domain.BuildTranscript(target, structured, now)); err != nil {
		return result, err
	}
	result.Notes = len(structured.Notes)
	return result, nil
}

func (r *ContentRouter) record(result RoutingResult, err error) {
	switch {
	case err == nil:
		r.recorder.ContentRouted(routingOutcomeRouted, result.TaskItems, result.CalendarEvents)
	case errors.Is(err, ErrOwnerResolution):
		r.recorder.ContentRouted(routingOutcomeOwner, 0, 0)
	case errors.Is(err, errNewerScanRouted):
		r.recorder.ContentRouted(routingOutcomeStale, 0, 0)
	default:
		r.recorder.ContentRouted(routingOutcomeError, 0, 0)
	}
}

// Content returns what routing has written for a page.
func (r *ContentRouter) Content(ctx context.Context, pageID uuid.UUID) (*PageContent, error) {
	out := &PageContent{}
	var err error
	if out.TaskItems, err = r.content.ListTaskItemsByPage(ctx, pageID); err != nil {
		return nil, newServiceError("routing", "content", "failed to list task items", err)
	}
	if out.CalendarEvents, err = r.content.ListCalendarEventsByPage(ctx, pageID); err != nil {
		return nil, newServiceError("routing", "content", "failed to list calendar events", err)
	}
	out.Transcript, err = r.content.GetTranscript(ctx, pageID)
	if err != nil && !errors.Is(err, store.ErrTranscriptNotFound) {
		return nil, newServiceError("routing", "content", "failed to load transcript", err)
	}
	return out, nil
}

// PageContent is everything routed from a page.
type PageContent struct {
	TaskItems      []*domain.TaskItem      `json:"task_items"`
	CalendarEvents []*domain.CalendarEvent `json:"calendar_events"`
	Transcript     *domain.PageTranscript  `json:"transcript,omitempty"`
}
