package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"github.com/phrazzld/pagescan/internal/store"
)

// PostgresContentStore implements store.ContentStore.
type PostgresContentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresContentStore creates a content store over a connection or transaction.
func NewPostgresContentStore(db store.DBTX, logger *slog.Logger) *PostgresContentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresContentStore{
		db:     db,
		logger: logger.With(slog.String("component", "content_store")),
	}
}

var _ store.ContentStore = (*PostgresContentStore)(nil)

// WithTx implements store.ContentStore.WithTx
func (s *PostgresContentStore) WithTx(tx *sql.Tx) store.ContentStore {
	return &PostgresContentStore{db: tx, logger: s.logger}
}

// UpsertTaskItems implements store.ContentStore.UpsertTaskItems
// The stored ID is written back to each item, so an update keeps the id the
// item was first created with.
func (s *PostgresContentStore) UpsertTaskItems(ctx context.Context, items []*domain.TaskItem) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO task_items (id, owner_id, notebook_id, page_id, job_id, position, text, done, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id, position) DO UPDATE
		SET text = EXCLUDED.text, owner_id = EXCLUDED.owner_id, updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	for i, item := range items {
		err := s.db.QueryRowContext(ctx, query,
			item.ID, item.OwnerID, item.NotebookID, item.PageID, item.JobID,
			item.Position, item.Text, item.Done, item.CreatedAt, item.UpdatedAt,
		).Scan(&item.ID)
		if err != nil {
			log.Error("failed to upsert task item",
				slog.String("error", err.Error()),
				slog.String("job_id", item.JobID.String()),
				slog.Int("position", item.Position))
			return i, MapError(err)
		}
	}
	return len(items), nil
}

// UpsertCalendarEvents implements store.ContentStore.UpsertCalendarEvents
func (s *PostgresContentStore) UpsertCalendarEvents(ctx context.Context, events []*domain.CalendarEvent) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO calendar_events (id, owner_id, notebook_id, page_id, job_id, position, title, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id, position) DO UPDATE
		SET title = EXCLUDED.title, owner_id = EXCLUDED.owner_id, updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	for i, ev := range events {
		err := s.db.QueryRowContext(ctx, query,
			ev.ID, ev.OwnerID, ev.NotebookID, ev.PageID, ev.JobID,
			ev.Position, ev.Title, ev.Status, ev.CreatedAt, ev.UpdatedAt,
		).Scan(&ev.ID)
		if err != nil {
			log.Error("failed to upsert calendar event",
				slog.String("error", err.Error()),
				slog.String("job_id", ev.JobID.String()),
				slog.Int("position", ev.Position))
			return i, MapError(err)
		}
	}
	return len(events), nil
}

// PruneSupersededContent implements store.ContentStore.PruneSupersededContent
func (s *PostgresContentStore) PruneSupersededContent(ctx context.Context, pageID, jobID uuid.UUID) (int, error) {
	older := `
		page_id = $1 AND job_id IN (
			SELECT id FROM scan_jobs
			WHERE page_id = $1
			  AND created_at < (SELECT created_at FROM scan_jobs WHERE id = $2)
		)
	`
	removed := 0
	for _, query := range []string{
		`DELETE FROM task_items WHERE done = FALSE AND ` + older,
		`DELETE FROM calendar_events WHERE status = 'draft' AND ` + older,
	} {
		result, err := s.db.ExecContext(ctx, query, pageID, jobID)
		if err != nil {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to prune superseded content",
				slog.String("error", err.Error()),
				slog.String("page_id", pageID.String()))
			return removed, MapError(err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("failed to get rows affected: %w", err)
		}
		removed += int(n)
	}
	return removed, nil
}

// UpsertTranscript implements store.ContentStore.UpsertTranscript
// A transcript from an older job never replaces one from a newer job.
func (s *PostgresContentStore) UpsertTranscript(ctx context.Context, tr *domain.PageTranscript) error {
	notes, err := json.Marshal(tr.Notes)
	if err != nil {
		return fmt.Errorf("failed to encode notes: %w", err)
	}

	query := `
		INSERT INTO page_transcripts (page_id, notebook_id, owner_id, job_id, cleaned_text, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (page_id) DO UPDATE
		SET notebook_id = EXCLUDED.notebook_id,
		    owner_id = EXCLUDED.owner_id,
		    job_id = EXCLUDED.job_id,
		    cleaned_text = EXCLUDED.cleaned_text,
		    notes = EXCLUDED.notes,
		    updated_at = EXCLUDED.updated_at
		WHERE page_transcripts.job_id = EXCLUDED.job_id
		   OR (SELECT created_at FROM scan_jobs WHERE id = EXCLUDED.job_id)
		      >= (SELECT created_at FROM scan_jobs WHERE id = page_transcripts.job_id)
	`
	_, err = s.db.ExecContext(ctx, query,
		tr.PageID, tr.NotebookID, tr.OwnerID, tr.JobID, tr.CleanedText, notes, tr.UpdatedAt)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to upsert transcript",
			slog.String("error", err.Error()),
			slog.String("page_id", tr.PageID.String()))
		return MapError(err)
	}
	return nil
}

// GetTranscript implements store.ContentStore.GetTranscript
func (s *PostgresContentStore) GetTranscript(ctx context.Context, pageID uuid.UUID) (*domain.PageTranscript, error) {
	var tr domain.PageTranscript
	var notes []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT page_id, notebook_id, owner_id, job_id, cleaned_text, notes, updated_at
		FROM page_transcripts
		WHERE page_id = $1
	`, pageID).Scan(&tr.PageID, &tr.NotebookID, &tr.OwnerID, &tr.JobID, &tr.CleanedText, &notes, &tr.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTranscriptNotFound
		}
		return nil, MapError(err)
	}
	if err := json.Unmarshal(notes, &tr.Notes); err != nil {
		return nil, fmt.Errorf("%w: transcript notes: %v", store.ErrInvalidEntity, err)
	}
	if tr.Notes == nil {
		tr.Notes = []string{}
	}
	return &tr, nil
}

// ListTaskItemsByPage implements store.ContentStore.ListTaskItemsByPage
func (s *PostgresContentStore) ListTaskItemsByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.TaskItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.owner_id, t.notebook_id, t.page_id, t.job_id, t.position, t.text, t.done, t.created_at, t.updated_at
		FROM task_items t
		JOIN scan_jobs j ON j.id = t.job_id
		WHERE t.page_id = $1
		ORDER BY j.created_at DESC, t.position
	`, pageID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	items := []*domain.TaskItem{}
	for rows.Next() {
		var it domain.TaskItem
		if err := rows.Scan(&it.ID, &it.OwnerID, &it.NotebookID, &it.PageID, &it.JobID,
			&it.Position, &it.Text, &it.Done, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, MapError(err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// ListCalendarEventsByPage implements store.ContentStore.ListCalendarEventsByPage
func (s *PostgresContentStore) ListCalendarEventsByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.owner_id, e.notebook_id, e.page_id, e.job_id, e.position, e.title, e.status, e.created_at, e.updated_at
		FROM calendar_events e
		JOIN scan_jobs j ON j.id = e.job_id
		WHERE e.page_id = $1
		ORDER BY j.created_at DESC, e.position
	`, pageID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	events := []*domain.CalendarEvent{}
	for rows.Next() {
		var ev domain.CalendarEvent
		var status string
		if err := rows.Scan(&ev.ID, &ev.OwnerID, &ev.NotebookID, &ev.PageID, &ev.JobID,
			&ev.Position, &ev.Title, &status, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, MapError(err)
		}
		ev.Status = domain.CalendarEventStatus(status)
		events = append(events, &ev)
	}
	return events, rows.Err()
}
