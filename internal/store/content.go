package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
)

// ContentStore persists the records routed out of a scan: task items,
// calendar events and page transcripts. Task items and events are keyed by
// (job_id, position), so writing the same job twice updates in place.
type ContentStore interface {
	// UpsertTaskItems inserts or updates items and returns how many rows were written.
	UpsertTaskItems(ctx context.Context, items []*domain.TaskItem) (int, error)

	// UpsertCalendarEvents inserts or updates events and returns how many rows were written.
	UpsertCalendarEvents(ctx context.Context, events []*domain.CalendarEvent) (int, error)

	// PruneSupersededContent removes unfinished task items and draft events
	// that older jobs for the page produced, and returns how many were removed.
	PruneSupersededContent(ctx context.Context, pageID, jobID uuid.UUID) (int, error)

	// UpsertTranscript replaces the page transcript unless the stored one
	// comes from a newer job.
	UpsertTranscript(ctx context.Context, transcript *domain.PageTranscript) error

	// GetTranscript returns the page transcript.
	// Returns ErrTranscriptNotFound if the page has none.
	GetTranscript(ctx context.Context, pageID uuid.UUID) (*domain.PageTranscript, error)

	// ListTaskItemsByPage returns the page's task items, newest job first.
	ListTaskItemsByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.TaskItem, error)

	// ListCalendarEventsByPage returns the page's calendar events, newest job first.
	ListCalendarEventsByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.CalendarEvent, error)

	// WithTx returns a ContentStore bound to tx.
	WithTx(tx *sql.Tx) ContentStore
}
