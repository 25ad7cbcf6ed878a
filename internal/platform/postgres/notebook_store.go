package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"github.com/phrazzld/pagescan/internal/store"
)

// PostgresNotebookStore implements store.NotebookStore.
type PostgresNotebookStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresNotebookStore creates a notebook store over a connection or transaction.
func NewPostgresNotebookStore(db store.DBTX, logger *slog.Logger) *PostgresNotebookStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresNotebookStore{
		db:     db,
		logger: logger.With(slog.String("component", "notebook_store")),
	}
}

var _ store.NotebookStore = (*PostgresNotebookStore)(nil)

// WithTx implements store.NotebookStore.WithTx
func (s *PostgresNotebookStore) WithTx(tx *sql.Tx) store.NotebookStore {
	return &PostgresNotebookStore{db: tx, logger: s.logger}
}

// Create implements store.NotebookStore.Create
func (s *PostgresNotebookStore) Create(ctx context.Context, notebook *domain.Notebook) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := notebook.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notebooks (id, owner_id, title, page_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, notebook.ID, notebook.OwnerID, notebook.Title, notebook.PageCount, notebook.CreatedAt)
	if err != nil {
		log.Error("failed to create notebook",
			slog.String("error", err.Error()),
			slog.String("notebook_id", notebook.ID.String()))
		return MapError(err)
	}

	log.Info("notebook created",
		slog.String("notebook_id", notebook.ID.String()),
		slog.String("owner_id", notebook.OwnerID.String()),
		slog.Int("page_count", notebook.PageCount))
	return nil
}

// GetByID implements store.NotebookStore.GetByID
func (s *PostgresNotebookStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notebook, error) {
	var n domain.Notebook
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, page_count, created_at
		FROM notebooks
		WHERE id = $1
	`, id).Scan(&n.ID, &n.OwnerID, &n.Title, &n.PageCount, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotebookNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get notebook",
			slog.String("error", err.Error()),
			slog.String("notebook_id", id.String()))
		return nil, MapError(err)
	}
	return &n, nil
}
