package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxNotebookPages bounds how many page slots one notebook may provision.
const MaxNotebookPages = 500

// Notebook owns a fixed run of pages. Only what owner resolution needs is
// modelled here.
type Notebook struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotebook creates a notebook for ownerID.
func NewNotebook(ownerID uuid.UUID, title string, pageCount int) (*Notebook, error) {
	n := &Notebook{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(title),
		PageCount: pageCount,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate checks notebook invariants.
func (n *Notebook) Validate() error {
	if n.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if n.OwnerID == uuid.Nil {
		return NewValidationError("owner_id", "cannot be empty", ErrInvalidID)
	}
	if n.Title == "" {
		return NewValidationError("title", "cannot be empty", nil)
	}
	if n.PageCount < 1 || n.PageCount > MaxNotebookPages {
		return NewValidationError("page_count", "is out of range", nil)
	}
	return nil
}
