package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/pagescan/internal/config"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"github.com/phrazzld/pagescan/internal/recognition"
	"google.golang.org/genai"
)

// contentGenerator is the part of the genai client the recognizer uses.
// *genai.Models implements it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Recognizer implements recognition.Recognizer using Gemini.
type Recognizer struct {
	logger     *slog.Logger
	config     config.LLMConfig
	models     contentGenerator
	maxRetries int

	mu  sync.Mutex
	rng *rand.Rand

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ recognition.Recognizer = (*Recognizer)(nil)

// NewRecognizer creates a Gemini client from cfg.
func NewRecognizer(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Recognizer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := validateConfig(ctx, logger, cfg); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", recognition.ErrInvalidConfig, err)
	}
	return newRecognizer(logger, cfg, client.Models), nil
}

func newRecognizer(logger *slog.Logger, cfg config.LLMConfig, models contentGenerator) *Recognizer {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	return &Recognizer{
		logger:     logger.With("component", "gemini_recognizer", "model", cfg.ModelName),
		config:     cfg,
		models:     models,
		maxRetries: maxRetries,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      sleepContext,
	}
}

// Recognize implements recognition.Recognizer.
func (g *Recognizer) Recognize(ctx context.Context, images []recognition.Image) (string, error) {
	if len(images) == 0 {
		return "", recognition.ErrNoImages
	}
	contents := []*genai.Content{buildContent(images)}
	cfg := &genai.GenerateContentConfig{Temperature: float32Ptr(0)}

	return g.callWithRetry(ctx, contents, cfg)
}

// buildContent puts the prompt first and the photographs after it, in order.
func buildContent(images []recognition.Image) *genai.Content {
	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, genai.NewPartFromText(transcriptionPrompt))
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	return genai.NewContentFromParts(parts, genai.RoleUser)
}

// callWithRetry calls the model up to maxRetries+1 times. Only API call
// errors are retried; a response that arrives but is unusable is final.
func (g *Recognizer) callWithRetry(
	ctx context.Context,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (string, error) {
	log := logger.FromContextOrDefault(ctx, g.logger)

	for attempt := 0; ; attempt++ {
		log.Debug("calling Gemini", "attempt", attempt+1, "max_attempts", g.maxRetries+1)

		text, err := g.callOnce(ctx, contents, cfg)
		if err == nil {
			log.Info("Gemini call succeeded", "attempt", attempt+1, "chars", len(text))
			return text, nil
		}
		if !errors.Is(err, recognition.ErrTransientFailure) {
			log.Warn("permanent recognition error, not retrying", "error", err)
			return "", err
		}
		if attempt >= g.maxRetries {
			log.Warn("maximum retry attempts reached", "max_retries", g.maxRetries, "error", err)
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				recognition.ErrTransientFailure, g.maxRetries, err)
		}

		delay := g.backoff(attempt)
		log.Info("retrying Gemini call after delay", "attempt", attempt+1, "delay", delay)
		if err := g.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("%w: %v", recognition.ErrTransientFailure, err)
		}
	}
}

func (g *Recognizer) callOnce(
	ctx context.Context,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (string, error) {
	if g.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.RequestTimeout)
		defer cancel()
	}

	resp, err := g.models.GenerateContent(ctx, g.config.ModelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", recognition.ErrTransientFailure, err)
	}
	return extractText(resp)
}

// extractText joins the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	switch {
	case resp == nil:
		return "", fmt.Errorf("%w: nil response", recognition.ErrInvalidResponse)
	case len(resp.Candidates) == 0:
		return "", fmt.Errorf("%w: no candidates", recognition.ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return "", fmt.Errorf("%w: finish reason %s", recognition.ErrContentBlocked, resp.Candidates[0].FinishReason)
	case resp.Candidates[0].Content == nil:
		return "", fmt.Errorf("%w: empty content", recognition.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// backoff returns baseRetryDelay * 2^attempt scaled by a jitter in [0.5, 1).
func (g *Recognizer) backoff(attempt int) time.Duration {
	g.mu.Lock()
	jitter := 0.5 + g.rng.Float64()*0.5
	g.mu.Unlock()
	return time.Duration(float64(baseRetryDelay) * math.Pow(2, float64(attempt)) * jitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func float32Ptr(v float32) *float32 { return &v }
