package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/token"
)

// ImageRef points at one captured photograph of a page.
type ImageRef struct {
	URL        string    `json:"url"`
	CapturedAt time.Time `json:"captured_at"`
}

// Page is one physical notebook page. (NotebookID, PageIndex) is unique and
// Token is unique across all pages.
type Page struct {
	ID             uuid.UUID  `json:"id"`
	NotebookID     uuid.UUID  `json:"notebook_id"`
	PageIndex      int        `json:"page_index"`
	Token          string     `json:"-"`
	TokenRevokedAt *time.Time `json:"token_revoked_at,omitempty"`
	Images         []ImageRef `json:"images"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PageRef is what a token resolves to.
type PageRef struct {
	PageID     uuid.UUID `json:"page_id"`
	NotebookID uuid.UUID `json:"notebook_id"`
	PageIndex  int       `json:"page_index"`
}

// NewPage creates a page slot with the given token.
func NewPage(notebookID uuid.UUID, pageIndex int, tok string) (*Page, error) {
	now := time.Now().UTC()
	p := &Page{
		ID:         uuid.New(),
		NotebookID: notebookID,
		PageIndex:  pageIndex,
		Token:      tok,
		Images:     []ImageRef{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the page invariants that do not need the store.
func (p *Page) Validate() error {
	if p.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if p.NotebookID == uuid.Nil {
		return NewValidationError("notebook_id", "cannot be empty", ErrInvalidID)
	}
	if p.PageIndex < 0 {
		return NewValidationError("page_index", "cannot be negative", nil)
	}
	if !token.LooksValid(p.Token) {
		return NewValidationError("token", "has invalid format", nil)
	}
	return nil
}

// Ref returns the identity triple a token resolves to.
func (p *Page) Ref() PageRef {
	return PageRef{PageID: p.ID, NotebookID: p.NotebookID, PageIndex: p.PageIndex}
}

// TokenActive reports whether the page token still resolves.
func (p *Page) TokenActive() bool {
	return p.TokenRevokedAt == nil
}

// NewImageRef validates and builds an ImageRef.
func NewImageRef(url string, capturedAt time.Time) (ImageRef, error) {
	if url == "" {
		return ImageRef{}, NewValidationError("url", "cannot be empty", nil)
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	return ImageRef{URL: url, CapturedAt: capturedAt.UTC()}, nil
}
