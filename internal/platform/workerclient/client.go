// Package workerclient hands scan jobs to an external recognition worker
// over HTTP. The worker later calls back on the worker API with the same
// shared secret.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
)

// SecretHeader carries the shared worker secret in both directions.
const SecretHeader = "X-Worker-Secret"

const defaultTimeout = 10 * time.Second

// ErrRejected is returned when the worker answers with a non-2xx status.
var ErrRejected = errors.New("worker rejected job")

// JobRequest is the body POSTed to the worker.
type JobRequest struct {
	JobID       uuid.UUID `json:"job_id"`
	PageID      uuid.UUID `json:"page_id"`
	ImageURLs   []string  `json:"image_urls"`
	AckURL      string    `json:"ack_url"`
	ResultURL   string    `json:"result_url"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Client dispatches jobs to the worker at url.
type Client struct {
	url             string
	callbackBaseURL string
	secret          string
	httpClient      *http.Client
	logger          *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a Client. callbackBaseURL is the public base of this server,
// used to build the ack and result URLs the worker calls.
func New(url, callbackBaseURL, secret string, log *slog.Logger, opts ...Option) (*Client, error) {
	if url == "" || callbackBaseURL == "" || secret == "" {
		return nil, errors.New("worker url, callback base url and secret are required")
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		url:             url,
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
		secret:          secret,
		httpClient:      &http.Client{Timeout: defaultTimeout},
		logger:          log.With("component", "worker_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dispatch implements task.Dispatcher. Resolved jobs are not sent.
func (c *Client) Dispatch(ctx context.Context, job *domain.ScanJob) error {
	log := logger.FromContextOrDefault(ctx, c.logger).With("job_id", job.ID)
	if job.IsTerminal() {
		log.Debug("job already resolved, not dispatching")
		return nil
	}

	base := c.callbackBaseURL + "/api/worker/jobs/" + job.ID.String()
	body, err := json.Marshal(JobRequest{
		JobID:       job.ID,
		PageID:      job.PageID,
		ImageURLs:   job.ImageURLs,
		AckURL:      base + "/ack",
		ResultURL:   base + "/result",
		SubmittedAt: job.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send job to worker: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn("worker rejected job", "status", resp.StatusCode)
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	log.Info("job dispatched to worker", "status", resp.StatusCode, "images", len(job.ImageURLs))
	return nil
}
