package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/pagescan/internal/config"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/gemini"
	"github.com/phrazzld/pagescan/internal/platform/workerclient"
	"github.com/phrazzld/pagescan/internal/recognition"
	"github.com/phrazzld/pagescan/internal/task"
)

// newDispatcher picks how recognition runs. In http mode jobs are posted to
// an external worker that reports back through the worker API; in gemini
// mode the server recognises images itself and feeds sink directly.
func newDispatcher(
	ctx context.Context,
	cfg *config.Config,
	images recognition.ImageFetcher,
	sink recognition.ResultSink,
	logger *slog.Logger,
) (task.Dispatcher, error) {
	switch cfg.Worker.Mode {
	case "http":
		client, err := workerclient.New(
			cfg.Worker.URL,
			cfg.Worker.CallbackBaseURL,
			cfg.Worker.Secret,
			logger,
			workerclient.WithTimeout(cfg.Worker.RequestTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create worker client: %w", err)
		}
		logger.Info("recognition dispatched to external worker", "url", cfg.Worker.URL)
		return client, nil
	case "gemini":
		recognizer, err := gemini.NewRecognizer(ctx, logger, cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini recognizer: %w", err)
		}
		d, err := recognition.NewInProcessDispatcher(recognizer, images, sink, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process dispatcher: %w", err)
		}
		logger.Info("recognition running in process", "model", cfg.LLM.ModelName)
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported worker mode %q", cfg.Worker.Mode)
	}
}

// dispatchObserver records how long a dispatch took.
type dispatchObserver interface {
	ObserveDispatch(seconds float64)
}

// timedDispatcher wraps a dispatcher with a latency histogram.
type timedDispatcher struct {
	next    task.Dispatcher
	metrics dispatchObserver
	now     func() time.Time
}

func (d *timedDispatcher) Dispatch(ctx context.Context, job *domain.ScanJob) error {
	now := d.now
	if now == nil {
		now = time.Now
	}
	start := now()
	err := d.next.Dispatch(ctx, job)
	d.metrics.ObserveDispatch(now().Sub(start).Seconds())
	return err
}
