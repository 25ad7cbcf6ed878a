package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"github.com/phrazzld/pagescan/internal/store"
	"github.com/phrazzld/pagescan/internal/token"
)

// PageService is the page registry: it assigns tokens to page slots,
// resolves tokens back to pages and records captured images.
type PageService struct {
	tx     store.TxRunner
	pages  store.PageStore
	tokens TokenGenerator
	logger *slog.Logger
	now    func() time.Time
}

// NewPageService creates a PageService.
// It returns an error if any of the required dependencies are nil.
func NewPageService(
	tx store.TxRunner,
	pages store.PageStore,
	tokens TokenGenerator,
	logger *slog.Logger,
) (*PageService, error) {
	if tx == nil {
		return nil, &ServiceError{Service: "page", Operation: "create_service", Message: "tx runner cannot be nil"}
	}
	if pages == nil {
		return nil, &ServiceError{Service: "page", Operation: "create_service", Message: "page store cannot be nil"}
	}
	if tokens == nil {
		return nil, &ServiceError{Service: "page", Operation: "create_service", Message: "token generator cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageService{
		tx:     tx,
		pages:  pages,
		tokens: tokens,
		logger: logger.With("component", "page_service"),
		now:    time.Now,
	}, nil
}

// Register creates the page at pageIndex in notebookID with a fresh token.
// It returns ErrPageConflict if the slot is taken.
func (s *PageService) Register(ctx context.Context, notebookID uuid.UUID, pageIndex int) (*domain.Page, error) {
	page, err := registerPage(ctx, s.pages, s.tokens, notebookID, pageIndex)
	if err != nil {
		return nil, NewPageServiceError("register", "failed to register page", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("page registered",
		"page_id", page.ID,
		"notebook_id", notebookID,
		"page_index", pageIndex)
	return page, nil
}

// registerPage creates a page through pages, regenerating the token when it
// collides with an existing one.
func registerPage(
	ctx context.Context,
	pages store.PageStore,
	tokens TokenGenerator,
	notebookID uuid.UUID,
	pageIndex int,
) (*domain.Page, error) {
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		tok, err := tokens.Generate()
		if err != nil {
			return nil, err
		}
		page, err := domain.NewPage(notebookID, pageIndex, tok)
		if err != nil {
			return nil, err
		}

		err = pages.Create(ctx, page)
		switch {
		case err == nil:
			return page, nil
		case errors.Is(err, store.ErrTokenExists):
			logger.FromContext(ctx).Warn("page token collision, regenerating",
				"attempt", attempt,
				"notebook_id", notebookID,
				"page_index", pageIndex)
			continue
		default:
			return nil, err
		}
	}
	return nil, ErrTokenExhausted
}

// Resolve returns the page a token points at. Unknown, malformed and
// revoked tokens all yield ErrTokenNotFound.
func (s *PageService) Resolve(ctx context.Context, tok string) (domain.PageRef, error) {
	page, err := s.pageForToken(ctx, tok)
	if err != nil {
		return domain.PageRef{}, err
	}
	return page.Ref(), nil
}

// PageForToken is Resolve returning the whole page.
func (s *PageService) PageForToken(ctx context.Context, tok string) (*domain.Page, error) {
	return s.pageForToken(ctx, tok)
}

func (s *PageService) pageForToken(ctx context.Context, tok string) (*domain.Page, error) {
	tok = token.Normalize(tok)
	if !token.LooksValid(tok) {
		return nil, ErrTokenNotFound
	}

	page, err := s.pages.GetByToken(ctx, tok)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTokenNotFound
		}
		return nil, NewPageServiceError("resolve", "failed to look up token", err)
	}
	if !page.TokenActive() {
		logger.FromContextOrDefault(ctx, s.logger).Debug("revoked token presented", "page_id", page.ID)
		return nil, ErrTokenNotFound
	}
	return page, nil
}

// AppendImage adds ref after the page's existing images. Duplicates are kept.
func (s *PageService) AppendImage(ctx context.Context, pageID uuid.UUID, ref domain.ImageRef) error {
	if ref.URL == "" {
		return domain.NewValidationError("url", "cannot be empty", nil)
	}
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		pages := s.pages.WithTx(tx)
		if _, err := pages.LockByID(ctx, pageID); err != nil {
			return err
		}
		return pages.AppendImage(ctx, pageID, ref)
	})
	if err != nil {
		return NewPageServiceError("append_image", "failed to append image", err)
	}
	return nil
}

// RotateToken gives the page a new token. The old token stops resolving and
// any revocation is lifted.
func (s *PageService) RotateToken(ctx context.Context, pageID uuid.UUID) (*domain.Page, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		tok, err := s.tokens.Generate()
		if err != nil {
			return nil, NewPageServiceError("rotate_token", "failed to generate token", err)
		}
		err = s.pages.UpdateToken(ctx, pageID, tok)
		if errors.Is(err, store.ErrTokenExists) {
			log.Warn("page token collision on rotate, regenerating", "attempt", attempt, "page_id", pageID)
			continue
		}
		if err != nil {
			return nil, NewPageServiceError("rotate_token", "failed to store token", err)
		}

		log.Info("page token rotated", "page_id", pageID)
		return s.GetPage(ctx, pageID)
	}
	return nil, ErrTokenExhausted
}

// RevokeToken stops the page token from resolving. Revoking twice keeps the
// first revocation time.
func (s *PageService) RevokeToken(ctx context.Context, pageID uuid.UUID) error {
	if err := s.pages.RevokeToken(ctx, pageID, s.now()); err != nil {
		return NewPageServiceError("revoke_token", "failed to revoke token", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("page token revoked", "page_id", pageID)
	return nil
}

// GetPage returns a page with its images.
func (s *PageService) GetPage(ctx context.Context, pageID uuid.UUID) (*domain.Page, error) {
	page, err := s.pages.GetByID(ctx, pageID)
	if err != nil {
		return nil, NewPageServiceError("get_page", "failed to load page", err)
	}
	return page, nil
}

// ListNotebookPages returns a notebook's pages in index order.
func (s *PageService) ListNotebookPages(ctx context.Context, notebookID uuid.UUID) ([]*domain.Page, error) {
	pages, err := s.pages.ListByNotebook(ctx, notebookID)
	if err != nil {
		return nil, NewPageServiceError("list_pages", "failed to list pages", err)
	}
	return pages, nil
}
