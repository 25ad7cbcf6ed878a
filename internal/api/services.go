package api

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/service"
)

// PageRegistry is the part of service.PageService the handlers use.
type PageRegistry interface {
	Resolve(ctx context.Context, token string) (domain.PageRef, error)
	PageForToken(ctx context.Context, token string) (*domain.Page, error)
	AppendImage(ctx context.Context, pageID uuid.UUID, ref domain.ImageRef) error
	RotateToken(ctx context.Context, pageID uuid.UUID) (*domain.Page, error)
	RevokeToken(ctx context.Context, pageID uuid.UUID) error
}

// ScanJobs is the part of service.ScanService the handlers use.
type ScanJobs interface {
	Submit(ctx context.Context, pageID uuid.UUID, imageURLs []string) (*domain.ScanJob, error)
	Status(ctx context.Context, pageID uuid.UUID) (*domain.ScanJob, error)
	MarkProcessing(ctx context.Context, jobID uuid.UUID) (*domain.ScanJob, error)
	Complete(ctx context.Context, jobID uuid.UUID, rawText string) (*domain.ScanJob, bool, error)
	Fail(ctx context.Context, jobID uuid.UUID, detail string) (*domain.ScanJob, bool, error)
}

// Notebooks is the part of service.NotebookService the handlers use.
type Notebooks interface {
	Provision(ctx context.Context, ownerID uuid.UUID, title string, pageCount int) (*domain.Notebook, []*domain.Page, error)
	ListPagesForOwner(ctx context.Context, ownerID, notebookID uuid.UUID) ([]*domain.Page, error)
	PageForOwner(ctx context.Context, ownerID, pageID uuid.UUID) (*domain.Page, error)
}

// ContentReader returns what was routed from a page.
type ContentReader interface {
	Content(ctx context.Context, pageID uuid.UUID) (*service.PageContent, error)
}

// ImageStore persists uploaded page images.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

var (
	_ PageRegistry  = (*service.PageService)(nil)
	_ ScanJobs      = (*service.ScanService)(nil)
	_ Notebooks     = (*service.NotebookService)(nil)
	_ ContentReader = (*service.ContentRouter)(nil)
)
