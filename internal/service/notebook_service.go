package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"github.com/phrazzld/pagescan/internal/store"
)

// NotebookService provisions notebooks and answers owner-scoped lookups.
type NotebookService struct {
	tx        store.TxRunner
	notebooks store.NotebookStore
	pages     store.PageStore
	tokens    TokenGenerator
	logger    *slog.Logger
}

// NewNotebookService creates a NotebookService.
func NewNotebookService(
	tx store.TxRunner,
	notebooks store.NotebookStore,
	pages store.PageStore,
	tokens TokenGenerator,
	logger *slog.Logger,
) (*NotebookService, error) {
	if tx == nil || notebooks == nil || pages == nil || tokens == nil {
		return nil, &ServiceError{
			Service:   "notebook",
			Operation: "create_service",
			Message:   "tx runner, notebook store, page store and token generator are required",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotebookService{
		tx:        tx,
		notebooks: notebooks,
		pages:     pages,
		tokens:    tokens,
		logger:    logger.With("component", "notebook_service"),
	}, nil
}

// Provision creates a notebook for ownerID and registers all of its page
// slots, each with its own token. Either everything is created or nothing is.
func (s *NotebookService) Provision(
	ctx context.Context,
	ownerID uuid.UUID,
	title string,
	pageCount int,
) (*domain.Notebook, []*domain.Page, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	notebook, err := domain.NewNotebook(ownerID, title, pageCount)
	if err != nil {
		return nil, nil, err
	}

	pages := make([]*domain.Page, 0, pageCount)
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		pages = pages[:0]
		if err := s.notebooks.WithTx(tx).Create(ctx, notebook); err != nil {
			return err
		}
		txPages := s.pages.WithTx(tx)
		for i := 0; i < pageCount; i++ {
			page, err := registerPage(ctx, txPages, s.tokens, notebook.ID, i)
			if err != nil {
				return err
			}
			pages = append(pages, page)
		}
		return nil
	})
	if err != nil {
		log.Error("failed to provision notebook", "error", err, "owner_id", ownerID)
		return nil, nil, newServiceError("notebook", "provision", "failed to provision notebook", err)
	}

	log.Info("notebook provisioned",
		"notebook_id", notebook.ID,
		"owner_id", ownerID,
		"page_count", pageCount)
	return notebook, pages, nil
}

// GetForOwner returns the notebook if ownerID owns it.
func (s *NotebookService) GetForOwner(ctx context.Context, ownerID, notebookID uuid.UUID) (*domain.Notebook, error) {
	notebook, err := s.notebooks.GetByID(ctx, notebookID)
	if err != nil {
		return nil, newServiceError("notebook", "get", "failed to load notebook", err)
	}
	if notebook.OwnerID != ownerID {
		return nil, ErrNotOwned
	}
	return notebook, nil
}

// ListPagesForOwner returns the notebook's pages if ownerID owns it.
func (s *NotebookService) ListPagesForOwner(ctx context.Context, ownerID, notebookID uuid.UUID) ([]*domain.Page, error) {
	if _, err := s.GetForOwner(ctx, ownerID, notebookID); err != nil {
		return nil, err
	}
	pages, err := s.pages.ListByNotebook(ctx, notebookID)
	if err != nil {
		return nil, newServiceError("notebook", "list_pages", "failed to list pages", err)
	}
	return pages, nil
}

// PageForOwner returns the page if ownerID owns its notebook.
func (s *NotebookService) PageForOwner(ctx context.Context, ownerID, pageID uuid.UUID) (*domain.Page, error) {
	page, err := s.pages.GetByID(ctx, pageID)
	if err != nil {
		return nil, newServiceError("notebook", "get_page", "failed to load page", err)
	}
	if _, err := s.GetForOwner(ctx, ownerID, page.NotebookID); err != nil {
		return nil, err
	}
	return page, nil
}
