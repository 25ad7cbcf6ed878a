package postgres

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
	"github.com/phrazzld/pagescan/internal/store"
)

const pageColumns = `id, notebook_id, page_index, token, token_revoked_at, created_at, updated_at`

var pageConstraintErrors = map[string]error{
	constraintPageIndex: store.ErrPageIndexExists,
	constraintPageToken: store.ErrTokenExists,
}

// PostgresPageStore implements store.PageStore.
type PostgresPageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresPageStore creates a page store over a connection or transaction.
// If logger is nil, a default logger will be used.
func NewPostgresPageStore(db store.DBTX, logger *slog.Logger) *PostgresPageStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPageStore{
		db:     db,
		logger: logger.With(slog.String("component", "page_store")),
	}
}

var _ store.PageStore = (*PostgresPageStore)(nil)

// WithTx implements store.PageStore.WithTx
func (s *PostgresPageStore) WithTx(tx *sql.Tx) store.PageStore {
	return &PostgresPageStore{db: tx, logger: s.logger}
}

// Create implements store.PageStore.Create
func (s *PostgresPageStore) Create(ctx context.Context, page *domain.Page) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := page.Validate(); err != nil {
		log.Warn("page validation failed during create",
			slog.String("error", err.Error()),
			slog.String("page_id", page.ID.String()))
		return err
	}

	// A token collision must not abort the caller's transaction, so it is
	// reported through the row count instead of a unique violation.
	query := `
		INSERT INTO pages (id, notebook_id, page_index, token, token_revoked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		page.ID,
		page.NotebookID,
		page.PageIndex,
		page.Token,
		page.TokenRevokedAt,
		page.CreatedAt,
		page.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: notebook %s", store.ErrNotebookNotFound, page.NotebookID)
		}
		mapped := MapConstraintViolation(err, pageConstraintErrors)
		if store.IsDuplicateError(mapped) {
			log.Debug("page create hit a uniqueness constraint",
				slog.String("page_id", page.ID.String()),
				slog.Int("page_index", page.PageIndex))
		} else {
			log.Error("failed to create page",
				slog.String("error", err.Error()),
				slog.String("page_id", page.ID.String()))
		}
		return mapped
	}
	if err := CheckRowsAffected(result, store.ErrTokenExists); err != nil {
		log.Debug("page token collided, caller should retry",
			slog.String("page_id", page.ID.String()))
		return err
	}

	log.Debug("page created",
		slog.String("page_id", page.ID.String()),
		slog.String("notebook_id", page.NotebookID.String()),
		slog.Int("page_index", page.PageIndex))
	return nil
}

// GetByID implements store.PageStore.GetByID
func (s *PostgresPageStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Page, error) {
	page, err := s.getOne(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadImages(ctx, page); err != nil {
		return nil, err
	}
	return page, nil
}

// GetByToken implements store.PageStore.GetByToken
func (s *PostgresPageStore) GetByToken(ctx context.Context, token string) (*domain.Page, error) {
	page, err := s.getOne(ctx, `SELECT `+pageColumns+` FROM pages WHERE token = $1`, token)
	if err != nil {
		return nil, err
	}
	if err := s.loadImages(ctx, page); err != nil {
		return nil, err
	}
	return page, nil
}

// LockByID implements store.PageStore.LockByID
func (s *PostgresPageStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.Page, error) {
	return s.getOne(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1 FOR UPDATE`, id)
}

// ListByNotebook implements store.PageStore.ListByNotebook
func (s *PostgresPageStore) ListByNotebook(ctx context.Context, notebookID uuid.UUID) ([]*domain.Page, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE notebook_id = $1 ORDER BY page_index`,
		notebookID)
	if err != nil {
		log.Error("failed to list pages",
			slog.String("error", err.Error()),
			slog.String("notebook_id", notebookID.String()))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	pages := []*domain.Page{}
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			log.Error("failed to scan page row", slog.String("error", err.Error()))
			return nil, err
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return pages, nil
}

// AppendImage implements store.PageStore.AppendImage
func (s *PostgresPageStore) AppendImage(ctx context.Context, pageID uuid.UUID, ref domain.ImageRef) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO page_images (page_id, seq, url, captured_at)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3
		FROM page_images
		WHERE page_id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, pageID, ref.URL, ref.CapturedAt); err != nil {
		if IsForeignKeyViolation(err) {
			return store.ErrPageNotFound
		}
		log.Error("failed to append page image",
			slog.String("error", err.Error()),
			slog.String("page_id", pageID.String()))
		return MapError(err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE pages SET updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), pageID)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrPageNotFound)
}

// UpdateToken implements store.PageStore.UpdateToken
func (s *PostgresPageStore) UpdateToken(ctx context.Context, pageID uuid.UUID, token string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx,
		`UPDATE pages SET token = $1, token_revoked_at = NULL, updated_at = $2 WHERE id = $3`,
		token, time.Now().UTC(), pageID)
	if err != nil {
		mapped := MapConstraintViolation(err, pageConstraintErrors)
		if !store.IsDuplicateError(mapped) {
			log.Error("failed to update page token",
				slog.String("error", err.Error()),
				slog.String("page_id", pageID.String()))
		}
		return mapped
	}
	return CheckRowsAffected(result, store.ErrPageNotFound)
}

// RevokeToken implements store.PageStore.RevokeToken
func (s *PostgresPageStore) RevokeToken(ctx context.Context, pageID uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE pages SET token_revoked_at = COALESCE(token_revoked_at, $1), updated_at = $1 WHERE id = $2`,
		at.UTC(), pageID)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to revoke page token",
			slog.String("error", err.Error()),
			slog.String("page_id", pageID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrPageNotFound)
}

func (s *PostgresPageStore) getOne(ctx context.Context, query string, arg any) (*domain.Page, error) {
	page, err := scanPage(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPageNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get page",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return page, nil
}

func (s *PostgresPageStore) loadImages(ctx context.Context, page *domain.Page) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx,
		`SELECT url, captured_at FROM page_images WHERE page_id = $1 ORDER BY seq`,
		page.ID)
	if err != nil {
		log.Error("failed to load page images",
			slog.String("error", err.Error()),
			slog.String("page_id", page.ID.String()))
		return MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	page.Images = []domain.ImageRef{}
	for rows.Next() {
		var ref domain.ImageRef
		if err := rows.Scan(&ref.URL, &ref.CapturedAt); err != nil {
			return MapError(err)
		}
		page.Images = append(page.Images, ref)
	}
	return rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (*domain.Page, error) {
	var page domain.Page
	var revokedAt sql.NullTime
	if err := row.Scan(
		&page.ID,
		&page.NotebookID,
		&page.PageIndex,
		&page.Token,
		&revokedAt,
		&page.CreatedAt,
		&page.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		page.TokenRevokedAt = &t
	}
	page.Images = []domain.ImageRef{}
	return &page, nil
}
