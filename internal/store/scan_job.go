package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
)

// ScanJobStore defines the interface for scan job persistence.
type ScanJobStore interface {
	// Create saves a new job.
	// Returns ErrUnresolvedJobExists if the page already has an unresolved job.
	Create(ctx context.Context, job *domain.ScanJob) error

	// GetByID retrieves a job.
	// Returns ErrScanJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ScanJob, error)

	// LockByID retrieves a job and holds a row lock until the surrounding
	// transaction ends. It must be called on a store from WithTx.
	LockByID(ctx context.Context, id uuid.UUID) (*domain.ScanJob, error)

	// FindUnresolvedByPage returns the page's pending or processing jobs.
	FindUnresolvedByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.ScanJob, error)

	// GetLatestByPage returns the unresolved job for the page if there is one,
	// otherwise the most recently created job.
	// Returns ErrScanJobNotFound if the page has no jobs.
	GetLatestByPage(ctx context.Context, pageID uuid.UUID) (*domain.ScanJob, error)

	// FindStale returns unresolved jobs last updated before cutoff.
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.ScanJob, error)

	// Update persists state, result, error and routing fields of a job.
	// Returns ErrScanJobNotFound if the job does not exist.
	Update(ctx context.Context, job *domain.ScanJob) error

	// WithTx returns a ScanJobStore bound to tx.
	WithTx(tx *sql.Tx) ScanJobStore
}
