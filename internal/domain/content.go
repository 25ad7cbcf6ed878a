package domain

import (
	"time"

	"github.com/google/uuid"
)

// CalendarEventStatus marks how far an event has been structured.
type CalendarEventStatus string

// CalendarEventDraft events hold the raw marked line until someone (or
// something) pulls a date and time out of it.
const CalendarEventDraft CalendarEventStatus = "draft"

// TaskItem is a to-do routed from a page. (JobID, Position) identifies it so
// routing the same job twice updates rather than duplicates.
type TaskItem struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	NotebookID uuid.UUID `json:"notebook_id"`
	PageID     uuid.UUID `json:"page_id"`
	JobID      uuid.UUID `json:"job_id"`
	Position   int       `json:"position"`
	Text       string    `json:"text"`
	Done       bool      `json:"done"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CalendarEvent is a draft event routed from a page.
type CalendarEvent struct {
	ID         uuid.UUID           `json:"id"`
	OwnerID    uuid.UUID           `json:"owner_id"`
	NotebookID uuid.UUID           `json:"notebook_id"`
	PageID     uuid.UUID           `json:"page_id"`
	JobID      uuid.UUID           `json:"job_id"`
	Position   int                 `json:"position"`
	Title      string              `json:"title"`
	Status     CalendarEventStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// PageTranscript is the readable text of a page from its latest routed job.
type PageTranscript struct {
	PageID      uuid.UUID `json:"page_id"`
	NotebookID  uuid.UUID `json:"notebook_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	JobID       uuid.UUID `json:"job_id"`
	CleanedText string    `json:"cleaned_text"`
	Notes       []string  `json:"notes"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoutingTarget names who routed content belongs to.
type RoutingTarget struct {
	OwnerID    uuid.UUID
	NotebookID uuid.UUID
	PageID     uuid.UUID
	JobID      uuid.UUID
}

// BuildTaskItems turns the task bucket into records for target.
func BuildTaskItems(target RoutingTarget, tasks []string, now time.Time) []*TaskItem {
	items := make([]*TaskItem, 0, len(tasks))
	for i, text := range tasks {
		items = append(items, &TaskItem{
			ID:         uuid.New(),
			OwnerID:    target.OwnerID,
			NotebookID: target.NotebookID,
			PageID:     target.PageID,
			JobID:      target.JobID,
			Position:   i,
			Text:       text,
			CreatedAt:  now.UTC(),
			UpdatedAt:  now.UTC(),
		})
	}
	return items
}

// BuildCalendarEvents turns the calendar bucket into draft events for target.
func BuildCalendarEvents(target RoutingTarget, entries []string, now time.Time) []*CalendarEvent {
	events := make([]*CalendarEvent, 0, len(entries))
	for i, title := range entries {
		events = append(events, &CalendarEvent{
			ID:         uuid.New(),
			OwnerID:    target.OwnerID,
			NotebookID: target.NotebookID,
			PageID:     target.PageID,
			JobID:      target.JobID,
			Position:   i,
			Title:      title,
			Status:     CalendarEventDraft,
			CreatedAt:  now.UTC(),
			UpdatedAt:  now.UTC(),
		})
	}
	return events
}

// BuildTranscript builds the page transcript for target.
func BuildTranscript(target RoutingTarget, out StructuredOutput, now time.Time) *PageTranscript {
	return &PageTranscript{
		PageID:      target.PageID,
		NotebookID:  target.NotebookID,
		OwnerID:     target.OwnerID,
		JobID:       target.JobID,
		CleanedText: out.CleanedText,
		Notes:       append([]string{}, out.Notes...),
		UpdatedAt:   now.UTC(),
	}
}
