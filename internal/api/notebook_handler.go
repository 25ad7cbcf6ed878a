package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/pagescan/internal/api/shared"
	"github.com/phrazzld/pagescan/internal/platform/logger"
)

// NotebookHandler serves the owner endpoints. Every route requires the
// authentication middleware and checks that the owner holds the resource.
type NotebookHandler struct {
	notebooks Notebooks
	pages     PageRegistry
	scans     ScanJobs
	content   ContentReader
	logger    *slog.Logger
}

// NewNotebookHandler creates a new NotebookHandler.
func NewNotebookHandler(
	notebooks Notebooks,
	pages PageRegistry,
	scans ScanJobs,
	content ContentReader,
	logger *slog.Logger,
) *NotebookHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for NotebookHandler")
	}
	return &NotebookHandler{
		notebooks: notebooks,
		pages:     pages,
		scans:     scans,
		content:   content,
		logger:    logger.With(slog.String("component", "notebook_handler")),
	}
}

// CreateNotebook handles POST /api/notebooks.
func (h *NotebookHandler) CreateNotebook(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateNotebookRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	notebook, pages, err := h.notebooks.Provision(r.Context(), ownerID, req.Title, req.PageCount)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create notebook")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("notebook created",
		slog.String("notebook_id", notebook.ID.String()),
		slog.Int("page_count", notebook.PageCount))
	shared.RespondWithJSON(w, r, http.StatusCreated, notebookToResponse(notebook, pages))
}

// ListPages handles GET /api/notebooks/{id}/pages.
func (h *NotebookHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	ownerID, notebookID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	pages, err := h.notebooks.ListPagesForOwner(r.Context(), ownerID, notebookID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list pages")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, pagesToResponse(pages))
}

// PageScan handles GET /api/pages/{id}/scan.
func (h *NotebookHandler) PageScan(w http.ResponseWriter, r *http.Request) {
	ownerID, pageID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if _, err := h.notebooks.PageForOwner(r.Context(), ownerID, pageID); err != nil {
		HandleAPIError(w, r, err, "Failed to load page")
		return
	}

	job, err := h.scans.Status(r.Context(), pageID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load scan status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, scanJobToResponse(job))
}

// PageContent handles GET /api/pages/{id}/content.
func (h *NotebookHandler) PageContent(w http.ResponseWriter, r *http.Request) {
	ownerID, pageID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if _, err := h.notebooks.PageForOwner(r.Context(), ownerID, pageID); err != nil {
		HandleAPIError(w, r, err, "Failed to load page")
		return
	}

	content, err := h.content.Content(r.Context(), pageID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load page content")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, content)
}

// RotateToken handles POST /api/pages/{id}/token/rotate.
func (h *NotebookHandler) RotateToken(w http.ResponseWriter, r *http.Request) {
	ownerID, pageID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if _, err := h.notebooks.PageForOwner(r.Context(), ownerID, pageID); err != nil {
		HandleAPIError(w, r, err, "Failed to load page")
		return
	}

	page, err := h.pages.RotateToken(r.Context(), pageID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to rotate token")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("page token rotated",
		slog.String("page_id", pageID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, pageToResponse(page, true))
}

// RevokeToken handles POST /api/pages/{id}/token/revoke.
func (h *NotebookHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	ownerID, pageID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if _, err := h.notebooks.PageForOwner(r.Context(), ownerID, pageID); err != nil {
		HandleAPIError(w, r, err, "Failed to load page")
		return
	}

	if err := h.pages.RevokeToken(r.Context(), pageID); err != nil {
		HandleAPIError(w, r, err, "Failed to revoke token")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("page token revoked",
		slog.String("page_id", pageID.String()))
	w.WriteHeader(http.StatusNoContent)
}
