package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
)

// NotebookStore defines the interface for notebook persistence.
type NotebookStore interface {
	// Create saves a new notebook.
	Create(ctx context.Context, notebook *domain.Notebook) error

	// GetByID retrieves a notebook.
	// Returns ErrNotebookNotFound if the notebook does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notebook, error)

	// WithTx returns a NotebookStore bound to tx.
	WithTx(tx *sql.Tx) NotebookStore
}
