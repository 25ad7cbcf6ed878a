package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
)

// PageStore defines the interface for page persistence.
type PageStore interface {
	// Create saves a new page.
	// Returns ErrPageIndexExists or ErrTokenExists on uniqueness violations.
	Create(ctx context.Context, page *domain.Page) error

	// GetByID retrieves a page and its images.
	// Returns ErrPageNotFound if the page does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Page, error)

	// GetByToken retrieves a page by exact token match, revoked or not.
	// Returns ErrPageNotFound if no page carries the token.
	GetByToken(ctx context.Context, token string) (*domain.Page, error)

	// LockByID retrieves a page without images and holds a row lock until the
	// surrounding transaction ends. It must be called on a store from WithTx.
	LockByID(ctx context.Context, id uuid.UUID) (*domain.Page, error)

	// ListByNotebook returns a notebook's pages ordered by index, without images.
	ListByNotebook(ctx context.Context, notebookID uuid.UUID) ([]*domain.Page, error)

	// AppendImage adds an image reference after the page's existing images.
	// Returns ErrPageNotFound if the page does not exist.
	AppendImage(ctx context.Context, pageID uuid.UUID, ref domain.ImageRef) error

	// UpdateToken replaces the page token and clears any revocation.
	// Returns ErrTokenExists on collision.
	UpdateToken(ctx context.Context, pageID uuid.UUID, token string) error

	// RevokeToken marks the page token revoked at the given time.
	RevokeToken(ctx context.Context, pageID uuid.UUID, at time.Time) error

	// WithTx returns a PageStore bound to tx.
	WithTx(tx *sql.Tx) PageStore
}
