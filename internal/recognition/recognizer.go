package recognition

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/objectstore"
)

// Image is one page photograph.
type Image struct {
	Data     []byte
	MIMEType string
}

// Recognizer transcribes the photographs of one page, in order, into a
// single text. Marker lines must come back verbatim.
type Recognizer interface {
	Recognize(ctx context.Context, images []Image) (string, error)
}

// ImageFetcher reads an uploaded image back by URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*objectstore.Object, error)
}

// ResultSink receives the outcome of a recognition run. The scan service
// implements it.
type ResultSink interface {
	MarkProcessing(ctx context.Context, jobID uuid.UUID) (*domain.ScanJob, error)
	Complete(ctx context.Context, jobID uuid.UUID, rawText string) (*domain.ScanJob, bool, error)
	Fail(ctx context.Context, jobID uuid.UUID, detail string) (*domain.ScanJob, bool, error)
}
