package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/pagescan/internal/config"
	"github.com/phrazzld/pagescan/internal/recognition"
)

const (
	// defaultMaxRetries applies when the configured value is negative.
	defaultMaxRetries = 3

	// baseRetryDelay is the first backoff step.
	baseRetryDelay = time.Second
)

// validateConfig checks the settings the recognizer cannot run without.
func validateConfig(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) error {
	if cfg.GeminiAPIKey == "" {
		logger.ErrorContext(ctx, "missing Gemini API key")
		return fmt.Errorf("%w: gemini API key cannot be empty", recognition.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		logger.ErrorContext(ctx, "missing Gemini model name")
		return fmt.Errorf("%w: model name cannot be empty", recognition.ErrInvalidConfig)
	}
	if cfg.MaxRetries < 0 {
		logger.WarnContext(ctx, "invalid max retries value, using default",
			"value", cfg.MaxRetries,
			"default", defaultMaxRetries)
	}
	return nil
}
