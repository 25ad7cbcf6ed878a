package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/api/shared"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/service"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockPages struct{ mock.Mock }

func (m *mockPages) Resolve(ctx context.Context, tok string) (domain.PageRef, error) {
	args := m.Called(ctx, tok)
	return args.Get(0).(domain.PageRef), args.Error(1)
}

func (m *mockPages) PageForToken(ctx context.Context, tok string) (*domain.Page, error) {
	args := m.Called(ctx, tok)
	page, _ := args.Get(0).(*domain.Page)
	return page, args.Error(1)
}

func (m *mockPages) AppendImage(ctx context.Context, pageID uuid.UUID, ref domain.ImageRef) error {
	return m.Called(ctx, pageID, ref).Error(0)
}

func (m *mockPages) RotateToken(ctx context.Context, pageID uuid.UUID) (*domain.Page, error) {
	args := m.Called(ctx, pageID)
	page, _ := args.Get(0).(*domain.Page)
	return page, args.Error(1)
}

func (m *mockPages) RevokeToken(ctx context.Context, pageID uuid.UUID) error {
	return m.Called(ctx, pageID).Error(0)
}

type mockScans struct{ mock.Mock }

func (m *mockScans) Submit(ctx context.Context, pageID uuid.UUID, urls []string) (*domain.ScanJob, error) {
	args := m.Called(ctx, pageID, urls)
	job, _ := args.Get(0).(*domain.ScanJob)
	return job, args.Error(1)
}

func (m *mockScans) Status(ctx context.Context, pageID uuid.UUID) (*domain.ScanJob, error) {
	args := m.Called(ctx, pageID)
	job, _ := args.Get(0).(*domain.ScanJob)
	return job, args.Error(1)
}

func (m *mockScans) MarkProcessing(ctx context.Context, jobID uuid.UUID) (*domain.ScanJob, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*domain.ScanJob)
	return job, args.Error(1)
}

func (m *mockScans) Complete(ctx context.Context, jobID uuid.UUID, raw string) (*domain.ScanJob, bool, error) {
	args := m.Called(ctx, jobID, raw)
	job, _ := args.Get(0).(*domain.ScanJob)
	return job, args.Bool(1), args.Error(2)
}

func (m *mockScans) Fail(ctx context.Context, jobID uuid.UUID, detail string) (*domain.ScanJob, bool, error) {
	args := m.Called(ctx, jobID, detail)
	job, _ := args.Get(0).(*domain.ScanJob)
	return job, args.Bool(1), args.Error(2)
}

type mockNotebooks struct{ mock.Mock }

func (m *mockNotebooks) Provision(
	ctx context.Context,
	ownerID uuid.UUID,
	title string,
	pageCount int,
) (*domain.Notebook, []*domain.Page, error) {
	args := m.Called(ctx, ownerID, title, pageCount)
	nb, _ := args.Get(0).(*domain.Notebook)
	pages, _ := args.Get(1).([]*domain.Page)
	return nb, pages, args.Error(2)
}

func (m *mockNotebooks) ListPagesForOwner(ctx context.Context, ownerID, notebookID uuid.UUID) ([]*domain.Page, error) {
	args := m.Called(ctx, ownerID, notebookID)
	pages, _ := args.Get(0).([]*domain.Page)
	return pages, args.Error(1)
}

func (m *mockNotebooks) PageForOwner(ctx context.Context, ownerID, pageID uuid.UUID) (*domain.Page, error) {
	args := m.Called(ctx, ownerID, pageID)
	page, _ := args.Get(0).(*domain.Page)
	return page, args.Error(1)
}

type mockContent struct{ mock.Mock }

func (m *mockContent) Content(ctx context.Context, pageID uuid.UUID) (*service.PageContent, error) {
	args := m.Called(ctx, pageID)
	content, _ := args.Get(0).(*service.PageContent)
	return content, args.Error(1)
}

func testPage(t *testing.T) *domain.Page {
	t.Helper()
	page, err := domain.NewPage(uuid.New(), 0, "NB-ABCDEFGHJK")
	require.NoError(t, err)
	return page
}

func testJob(t *testing.T, pageID uuid.UUID) *domain.ScanJob {
	t.Helper()
	job, err := domain.NewScanJob(pageID, []string{"https://img.example/1.jpg"})
	require.NoError(t, err)
	return job
}

// serve routes req through a chi router with pattern so URL params resolve.
// A non-nil owner is placed in the context as the authenticated user.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request, owner *uuid.UUID) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	if owner != nil {
		req = req.WithContext(context.WithValue(req.Context(), shared.UserIDContextKey, *owner))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}
