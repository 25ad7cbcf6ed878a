package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"github.com/phrazzld/pagescan/internal/redact"
)

// InProcessDispatcher runs recognition inside the server process.
type InProcessDispatcher struct {
	recognizer Recognizer
	images     ImageFetcher
	sink       ResultSink
	logger     *slog.Logger
}

// NewInProcessDispatcher creates an InProcessDispatcher.
func NewInProcessDispatcher(
	recognizer Recognizer,
	images ImageFetcher,
	sink ResultSink,
	log *slog.Logger,
) (*InProcessDispatcher, error) {
	if recognizer == nil || images == nil || sink == nil {
		return nil, fmt.Errorf("%w: recognizer, image fetcher and result sink are required", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	return &InProcessDispatcher{
		recognizer: recognizer,
		images:     images,
		sink:       sink,
		logger:     log.With("component", "inprocess_dispatcher"),
	}, nil
}

// Dispatch acknowledges the job, recognises its images and completes or
// fails it. Recognition problems end up on the job; the returned error is
// reserved for failures to record the outcome and for cancellation.
func (d *InProcessDispatcher) Dispatch(ctx context.Context, job *domain.ScanJob) error {
	log := logger.FromContextOrDefault(ctx, d.logger).With("job_id", job.ID)

	if job.IsTerminal() {
		log.Debug("job already resolved, nothing to recognise")
		return nil
	}
	if _, err := d.sink.MarkProcessing(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to acknowledge job: %w", err)
	}

	images, err := d.fetchImages(ctx, job)
	if err == nil {
		var text string
		text, err = d.recognizer.Recognize(ctx, images)
		if err == nil {
			return d.complete(ctx, log, job, text)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	detail := redact.Error(err)
	log.Warn("recognition failed", "error", detail)
	if _, _, failErr := d.sink.Fail(ctx, job.ID, detail); failErr != nil {
		if errors.Is(failErr, domain.ErrInvalidTransition) {
			log.Info("job resolved elsewhere before failure was recorded")
			return nil
		}
		return fmt.Errorf("failed to record recognition failure: %w", failErr)
	}
	return nil
}

func (d *InProcessDispatcher) fetchImages(ctx context.Context, job *domain.ScanJob) ([]Image, error) {
	if len(job.ImageURLs) == 0 {
		return nil, ErrNoImages
	}
	images := make([]Image, 0, len(job.ImageURLs))
	for i, url := range job.ImageURLs {
		obj, err := d.images.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		images = append(images, Image{Data: obj.Data, MIMEType: obj.ContentType})
	}
	return images, nil
}

func (d *InProcessDispatcher) complete(ctx context.Context, log *slog.Logger, job *domain.ScanJob, text string) error {
	_, changed, err := d.sink.Complete(ctx, job.ID, text)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Info("job resolved elsewhere, dropping recognised text")
			return nil
		}
		return fmt.Errorf("failed to record recognised text: %w", err)
	}
	log.Info("page recognised", "chars", len(text), "changed", changed)
	return nil
}
