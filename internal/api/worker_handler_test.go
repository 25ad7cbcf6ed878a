package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newWorkerFixture() (*mockScans, *WorkerHandler) {
	scans := &mockScans{}
	return scans, NewWorkerHandler(scans, quietLogger())
}

func postResult(h *WorkerHandler, jobID string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/worker/jobs/"+jobID+"/result", strings.NewReader(body))
	return serve(http.MethodPost, "/api/worker/jobs/{id}/result", h.Result, req, nil)
}

func TestWorkerHandler_Ack(t *testing.T) {
	t.Parallel()
	scans, h := newWorkerFixture()
	job := testJob(t, uuid.New())
	job.State = domain.ScanJobStateProcessing
	unknown := uuid.New()

	scans.On("MarkProcessing", mock.Anything, job.ID).Return(job, nil)
	scans.On("MarkProcessing", mock.Anything, unknown).Return(nil, service.ErrJobNotFound)

	rec := serve(http.MethodPost, "/api/worker/jobs/{id}/ack", h.Ack,
		httptest.NewRequest(http.MethodPost, "/api/worker/jobs/"+job.ID.String()+"/ack", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ScanJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ScanJobStateProcessing, resp.State)

	rec = serve(http.MethodPost, "/api/worker/jobs/{id}/ack", h.Ack,
		httptest.NewRequest(http.MethodPost, "/api/worker/jobs/"+unknown.String()+"/ack", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkerHandler_ResultText(t *testing.T) {
	t.Parallel()
	scans, h := newWorkerFixture()
	job := testJob(t, uuid.New())
	job.State = domain.ScanJobStateDone

	scans.On("Complete", mock.Anything, job.ID, "hello").Return(job, true, nil).Once()
	scans.On("Complete", mock.Anything, job.ID, "hello").Return(job, false, nil).Once()

	rec := postResult(h, job.ID.String(), `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp WorkerResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Duplicate)
	assert.Equal(t, domain.ScanJobStateDone, resp.Job.State)

	rec = postResult(h, job.ID.String(), `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Duplicate)
}

func TestWorkerHandler_ResultError(t *testing.T) {
	t.Parallel()
	scans, h := newWorkerFixture()
	job := testJob(t, uuid.New())
	job.State = domain.ScanJobStateFailed

	scans.On("Fail", mock.Anything, job.ID, "image unreadable").Return(job, true, nil)

	rec := postResult(h, job.ID.String(), `{"error":"image unreadable"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	scans.AssertExpectations(t)
}

func TestWorkerHandler_ResultRejections(t *testing.T) {
	t.Parallel()

	jobID := uuid.New()

	tests := []struct {
		name       string
		jobID      string
		body       string
		setup      func(*mockScans)
		wantStatus int
	}{
		{
			name:       "both text and error",
			jobID:      jobID.String(),
			body:       `{"text":"a","error":"b"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "neither text nor error",
			jobID:      jobID.String(),
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad job id",
			jobID:      "nope",
			body:       `{"text":"a"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "unknown job",
			jobID: jobID.String(),
			body:  `{"text":"a"}`,
			setup: func(m *mockScans) {
				m.On("Complete", mock.Anything, jobID, "a").Return(nil, false, service.ErrJobNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:  "superseded job",
			jobID: jobID.String(),
			body:  `{"text":"a"}`,
			setup: func(m *mockScans) {
				m.On("Complete", mock.Anything, jobID, "a").Return(nil, false,
					&service.ServiceError{Service: "scan", Operation: "complete", Err: domain.ErrInvalidTransition})
			},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			scans, h := newWorkerFixture()
			if tt.setup != nil {
				tt.setup(scans)
			}
			rec := postResult(h, tt.jobID, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
