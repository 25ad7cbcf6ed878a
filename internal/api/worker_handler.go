package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/pagescan/internal/api/shared"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
)

// WorkerHandler receives callbacks from the recognition worker. Routes are
// guarded by the worker secret middleware.
type WorkerHandler struct {
	scans  ScanJobs
	logger *slog.Logger
}

// NewWorkerHandler creates a new WorkerHandler.
func NewWorkerHandler(scans ScanJobs, logger *slog.Logger) *WorkerHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for WorkerHandler")
	}
	return &WorkerHandler{
		scans:  scans,
		logger: logger.With(slog.String("component", "worker_handler")),
	}
}

// Ack handles POST /api/worker/jobs/{id}/ack.
func (h *WorkerHandler) Ack(w http.ResponseWriter, r *http.Request) {
	jobID, ok := handlePathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	job, err := h.scans.MarkProcessing(r.Context(), jobID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to acknowledge job")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, scanJobToResponse(job))
}

// Result handles POST /api/worker/jobs/{id}/result. A repeated identical
// result is answered with 200 and duplicate set; a conflicting one with 409.
func (h *WorkerHandler) Result(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	jobID, ok := handlePathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	var req WorkerResultRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	var (
		job     *domain.ScanJob
		changed bool
		err     error
	)
	outcome := "text"
	if req.Text != nil {
		job, changed, err = h.scans.Complete(r.Context(), jobID, *req.Text)
	} else {
		outcome = "error"
		job, changed, err = h.scans.Fail(r.Context(), jobID, *req.Error)
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record result")
		return
	}

	resp := WorkerResultResponse{Job: scanJobToResponse(job), Duplicate: !changed}
	log.Info("worker result recorded",
		slog.String("job_id", jobID.String()),
		slog.String("outcome", outcome),
		slog.Bool("duplicate", resp.Duplicate))
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
