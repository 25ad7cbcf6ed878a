package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
)

// CreateNotebookRequest defines the payload for provisioning a notebook.
type CreateNotebookRequest struct {
	Title     string `json:"title"      validate:"required,max=200"`
	PageCount int    `json:"page_count" validate:"required,gt=0,lte=500"`
}

// WorkerResultRequest is the recognition worker's report for a job. Exactly
// one of Text and Error is set.
type WorkerResultRequest struct {
	Text  *string `json:"text,omitempty"`
	Error *string `json:"error,omitempty"`
}

// Validate implements the self-validation hook used by shared.ValidateRequest.
func (r WorkerResultRequest) Validate() error {
	if (r.Text == nil) == (r.Error == nil) {
		return domain.NewValidationError("result", "must carry exactly one of text or error", nil)
	}
	return nil
}

// PageResponse describes a page to its owner. The token is only shown to owners.
type PageResponse struct {
	ID          uuid.UUID `json:"id"`
	NotebookID  uuid.UUID `json:"notebook_id"`
	PageIndex   int       `json:"page_index"`
	Token       string    `json:"token,omitempty"`
	TokenActive bool      `json:"token_active"`
	ImageCount  int       `json:"image_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NotebookResponse is returned after provisioning.
type NotebookResponse struct {
	ID        uuid.UUID      `json:"id"`
	OwnerID   uuid.UUID      `json:"owner_id"`
	Title     string         `json:"title"`
	PageCount int            `json:"page_count"`
	CreatedAt time.Time      `json:"created_at"`
	Pages     []PageResponse `json:"pages"`
}

// ScanJobResponse is the externally visible state of a scan job.
type ScanJobResponse struct {
	ID           uuid.UUID                `json:"id"`
	PageID       uuid.UUID                `json:"page_id"`
	State        domain.ScanJobState      `json:"state"`
	ImageCount   int                      `json:"image_count"`
	RawText      *string                  `json:"raw_text,omitempty"`
	Structured   *domain.StructuredOutput `json:"structured_output,omitempty"`
	Error        *domain.JobError         `json:"error,omitempty"`
	RoutingState domain.RoutingState      `json:"routing_state"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// WorkerResultResponse reports whether a result changed the job.
type WorkerResultResponse struct {
	Job       ScanJobResponse `json:"job"`
	Duplicate bool            `json:"duplicate"`
}

func pageToResponse(page *domain.Page, withToken bool) PageResponse {
	resp := PageResponse{
		ID:          page.ID,
		NotebookID:  page.NotebookID,
		PageIndex:   page.PageIndex,
		TokenActive: page.TokenActive(),
		ImageCount:  len(page.Images),
		UpdatedAt:   page.UpdatedAt,
	}
	if withToken {
		resp.Token = page.Token
	}
	return resp
}

func pagesToResponse(pages []*domain.Page) []PageResponse {
	out := make([]PageResponse, 0, len(pages))
	for _, p := range pages {
		out = append(out, pageToResponse(p, true))
	}
	return out
}

func notebookToResponse(notebook *domain.Notebook, pages []*domain.Page) NotebookResponse {
	return NotebookResponse{
		ID:        notebook.ID,
		OwnerID:   notebook.OwnerID,
		Title:     notebook.Title,
		PageCount: notebook.PageCount,
		CreatedAt: notebook.CreatedAt,
		Pages:     pagesToResponse(pages),
	}
}

// scanJobToResponse converts a job. The routing error stays server side.
func scanJobToResponse(job *domain.ScanJob) ScanJobResponse {
	return ScanJobResponse{
		ID:           job.ID,
		PageID:       job.PageID,
		State:        job.State,
		ImageCount:   len(job.ImageURLs),
		RawText:      job.RawText,
		Structured:   job.Structured,
		Error:        job.Error,
		RoutingState: job.RoutingState,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}
