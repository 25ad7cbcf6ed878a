package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/api"
	"github.com/phrazzld/pagescan/internal/config"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/objectstore"
	"github.com/phrazzld/pagescan/internal/platform/workerclient"
	"github.com/phrazzld/pagescan/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorkerSecret = "worker-secret-0123456789"

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func testRouter(t *testing.T, db pinger) (http.Handler, auth.JWTService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "test-secret-that-is-long-enough-for-hmac",
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)

	images, err := objectstore.NewLocalStore(t.TempDir(), "http://localhost:8080/files", logger)
	require.NoError(t, err)
	_, err = images.Put(context.Background(), "pages/p1/hello.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)

	return newRouter(routes{
		logger:       logger,
		jwtService:   jwtService,
		workerSecret: testWorkerSecret,
		scans:        api.NewScanHandler(nil, nil, nil, api.UploadLimits{MaxImages: 1, MaxBytes: 1}, nil, logger),
		notebooks:    api.NewNotebookHandler(nil, nil, nil, nil, logger),
		worker:       api.NewWorkerHandler(nil, logger),
		metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		db:        db,
		files:     images.Handler(),
		filesPath: "/files",
	}), jwtService
}

func do(t *testing.T, h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		h, _ := testRouter(t, fakePinger{})
		rr := do(t, h, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
		assert.NotEmpty(t, rr.Header().Get("X-Trace-Id"))
	})

	t.Run("database down", func(t *testing.T) {
		h, _ := testRouter(t, fakePinger{err: errors.New("connection refused")})
		rr := do(t, h, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestRouter_Metrics(t *testing.T) {
	h, _ := testRouter(t, nil)
	rr := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "# metrics")
}

func TestRouter_Files(t *testing.T) {
	h, _ := testRouter(t, nil)

	rr := do(t, h, http.MethodGet, "/files/pages/p1/hello.png", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "png", rr.Body.String())

	rr = do(t, h, http.MethodGet, "/files/pages/p1/missing.png", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	for _, dir := range []string{"/files/", "/files/pages/", "/files/pages/p1/", "/files/pages/p1"} {
		rr = do(t, h, http.MethodGet, dir, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, dir)
		assert.NotContains(t, rr.Body.String(), "hello.png", dir)
	}
}

func TestRouter_OwnerRoutesRequireToken(t *testing.T) {
	h, jwtService := testRouter(t, nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/notebooks"},
		{http.MethodGet, "/api/notebooks/not-a-uuid/pages"},
		{http.MethodGet, "/api/pages/not-a-uuid/scan"},
		{http.MethodGet, "/api/pages/not-a-uuid/content"},
		{http.MethodPost, "/api/pages/not-a-uuid/token/rotate"},
		{http.MethodPost, "/api/pages/not-a-uuid/token/revoke"},
	}

	token, err := jwtService.GenerateToken(context.Background(), uuid.New())
	require.NoError(t, err)

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rr := do(t, h, p.method, p.path, nil)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)

			// With a valid token the request reaches the handler, which
			// rejects the malformed id or empty body.
			rr = do(t, h, p.method, p.path, http.Header{"Authorization": {"Bearer " + token}})
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestRouter_WorkerRoutesRequireSecret(t *testing.T) {
	h, _ := testRouter(t, nil)

	for _, path := range []string{"/api/worker/jobs/not-a-uuid/ack", "/api/worker/jobs/not-a-uuid/result"} {
		t.Run(path, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, path, nil)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)

			rr = do(t, h, http.MethodPost, path, http.Header{"Wrong": {testWorkerSecret}})
			assert.Equal(t, http.StatusUnauthorized, rr.Code)

			header := http.Header{}
			header.Set(workerclient.SecretHeader, testWorkerSecret)
			rr = do(t, h, http.MethodPost, path, header)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestFilesMountPath(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080/files":      "/files",
		"http://localhost:8080/media/img/": "/media/img",
		"http://localhost:8080":            "/files",
		"https://cdn.example.com/":         "/files",
		"::bad url":                        "/files",
	}
	for in, want := range tests {
		assert.Equal(t, want, filesMountPath(in), in)
	}
}

type recordingDispatcher struct {
	err error
	got *domain.ScanJob
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job *domain.ScanJob) error {
	d.got = job
	return d.err
}

type observed struct{ seconds []float64 }

func (o *observed) ObserveDispatch(seconds float64) { o.seconds = append(o.seconds, seconds) }

func TestTimedDispatcher(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ticks := []time.Time{start, start.Add(1500 * time.Millisecond)}
	now := func() time.Time {
		tick := ticks[0]
		ticks = ticks[1:]
		return tick
	}

	next := &recordingDispatcher{err: errors.New("worker unreachable")}
	obs := &observed{}
	d := &timedDispatcher{next: next, metrics: obs, now: now}

	job := &domain.ScanJob{ID: uuid.New()}
	err := d.Dispatch(context.Background(), job)

	assert.EqualError(t, err, "worker unreachable")
	assert.Same(t, job, next.got)
	assert.Equal(t, []float64{1.5}, obs.seconds)
}
