package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/annotation"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completedJob provisions a one-page notebook for owner and completes a scan
// of it with raw.
func completedJob(t *testing.T, f *fixture, owner uuid.UUID, raw string) (*domain.Page, *domain.ScanJob) {
	t.Helper()
	ctx := context.Background()

	_, pages := f.provision(owner, 1)
	job, err := f.scans.Submit(ctx, pages[0].ID, []string{"file:///p.jpg"})
	require.NoError(t, err)
	done, _, err := f.scans.Complete(ctx, job.ID, raw)
	require.NoError(t, err)
	return pages[0], done
}

func TestContentRouter_Route(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	owner := uuid.New()
	page, job := completedJob(t, f, owner, workedExample)

	result, err := f.router.Route(ctx, owner, page.NotebookID, page.ID, job.ID, *job.Structured)
	require.NoError(t, err)
	assert.Equal(t, RoutingResult{TaskItems: 1, CalendarEvents: 1}, result)

	content, err := f.router.Content(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, content.TaskItems, 1)
	assert.Equal(t, "call dentist", content.TaskItems[0].Text)
	assert.Equal(t, owner, content.TaskItems[0].OwnerID)
	assert.False(t, content.TaskItems[0].Done)
	require.Len(t, content.CalendarEvents, 1)
	assert.Equal(t, "dentist appt friday 3pm", content.CalendarEvents[0].Title)
	assert.Equal(t, domain.CalendarEventDraft, content.CalendarEvents[0].Status)
	require.NotNil(t, content.Transcript)
	assert.Equal(t, job.Structured.CleanedText, content.Transcript.CleanedText)
	assert.Equal(t, job.ID, content.Transcript.JobID)

	assert.Equal(t, 1, f.recorder.routed[routingOutcomeRouted])
}

func TestContentRouter_RouteTwiceLeavesOneCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	owner := uuid.New()
	page, job := completedJob(t, f, owner, workedExample)

	_, err := f.router.Route(ctx, owner, page.NotebookID, page.ID, job.ID, *job.Structured)
	require.NoError(t, err)
	first, err := f.router.Content(ctx, page.ID)
	require.NoError(t, err)

	_, err = f.router.Route(ctx, owner, page.NotebookID, page.ID, job.ID, *job.Structured)
	require.NoError(t, err)
	second, err := f.router.Content(ctx, page.ID)
	require.NoError(t, err)

	require.Len(t, second.TaskItems, 1)
	require.Len(t, second.CalendarEvents, 1)
	assert.Equal(t, first.TaskItems[0].ID, second.TaskItems[0].ID)
	assert.Equal(t, first.CalendarEvents[0].ID, second.CalendarEvents[0].ID)
}

func TestContentRouter_RouteOwnerMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	page, job := completedJob(t, f, uuid.New(), workedExample)

	_, err := f.router.Route(ctx, uuid.New(), page.NotebookID, page.ID, job.ID, *job.Structured)
	assert.ErrorIs(t, err, ErrOwnerResolution)

	_, err = f.router.Route(ctx, uuid.Nil, page.NotebookID, page.ID, job.ID, *job.Structured)
	assert.ErrorIs(t, err, ErrOwnerResolution)

	_, err = f.router.Route(ctx, uuid.New(), uuid.New(), page.ID, job.ID, *job.Structured)
	assert.ErrorIs(t, err, ErrOwnerResolution)

	content, err := f.router.Content(ctx, page.ID)
	require.NoError(t, err)
	assert.Empty(t, content.TaskItems)
	assert.Empty(t, content.CalendarEvents)
	assert.Nil(t, content.Transcript)
	assert.Equal(t, 3, f.recorder.routed[routingOutcomeOwner])
}

func TestContentRouter_RouteStoreFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	owner := uuid.New()
	page, job := completedJob(t, f, owner, workedExample)
	f.contentS.failWrite = errBoom

	_, err := f.router.Route(ctx, owner, page.NotebookID, page.ID, job.ID, *job.Structured)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, f.recorder.routed[routingOutcomeError])
}

func TestContentRouter_RouteJobStoreFailureMarksRoutingFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	page, job := completedJob(t, f, uuid.New(), workedExample)
	f.contentS.failWrite = errBoom

	err := f.router.RouteJob(ctx, job.ID)
	require.ErrorIs(t, err, errBoom)

	got, err := f.scans.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanJobStateDone, got.State)
	assert.Equal(t, domain.RoutingStateFailed, got.RoutingState)
	assert.Contains(t, got.RoutingError, "boom")
	assert.Equal(t, 1, f.recorder.routed[routingOutcomeError])

	// Once the store recovers a redelivered event routes the job.
	f.contentS.failWrite = nil
	require.NoError(t, f.router.RouteJob(ctx, job.ID))

	got, err = f.scans.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoutingStateRouted, got.RoutingState)
	assert.Empty(t, got.RoutingError)

	content, err := f.router.Content(ctx, page.ID)
	require.NoError(t, err)
	assert.Len(t, content.TaskItems, 1)
}

func TestContentRouter_RouteJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	owner := uuid.New()
	page, job := completedJob(t, f, owner, workedExample)

	require.NoError(t, f.router.RouteJob(ctx, job.ID))

	routed, err := f.scans.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanJobStateDone, routed.State)
	assert.Equal(t, domain.RoutingStateRouted, routed.RoutingState)
	assert.Empty(t, routed.RoutingError)

	content, err := f.router.Content(ctx, page.ID)
	require.NoError(t, err)
	assert.Len(t, content.TaskItems, 1)
	assert.Len(t, content.CalendarEvents, 1)

	// A redelivered event routes again without duplicating anything.
	require.NoError(t, f.router.RouteJob(ctx, job.ID))
	content, err = f.router.Content(ctx, page.ID)
	require.NoError(t, err)
	assert.Len(t, content.TaskItems, 1)
	assert.Len(t, content.CalendarEvents, 1)
}

func TestContentRouter_RouteJobOwnerResolutionFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	page, job := completedJob(t, f, uuid.New(), workedExample)

	// Notebook removed after the scan finished.
	f.db.mu.Lock()
	delete(f.db.notebooks, page.NotebookID)
	f.db.mu.Unlock()

	require.NoError(t, f.router.RouteJob(ctx, job.ID))

	got, err := f.scans.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanJobStateDone, got.State)
	assert.Equal(t, domain.RoutingStateFailed, got.RoutingState)
	assert.Contains(t, got.RoutingError, ErrOwnerResolution.Error())

	content, err := f.router.Content(ctx, page.ID)
	require.NoError(t, err)
	assert.Empty(t, content.TaskItems)
	assert.Equal(t, 1, f.recorder.routed[routingOutcomeOwner])
}

func TestContentRouter_RouteJobSkipsUnfinishedJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	_, pages := f.provision(uuid.New(), 1)
	job, err := f.scans.Submit(ctx, pages[0].ID, []string{"file:///p.jpg"})
	require.NoError(t, err)

	require.NoError(t, f.router.RouteJob(ctx, job.ID))

	got, err := f.scans.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanJobStatePending, got.State)
	assert.Equal(t, domain.RoutingStateNone, got.RoutingState)
	assert.Empty(t, f.recorder.routed)

	err = f.router.RouteJob(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestContentRouter_RescanReplacesUnfinishedContent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	owner := uuid.New()
	page, first := completedJob(t, f, owner, "--kw TODO: old task\n--kw TODO: finished task\n--kw CAL: old event")
	require.NoError(t, f.router.RouteJob(ctx, first.ID))

	// The owner ticks off one task before the page is scanned again.
	f.db.mu.Lock()
	for _, it := range f.db.taskItems {
		if it.Text == "finished task" {
			it.Done = true
		}
	}
	f.db.mu.Unlock()

	second, err := f.scans.Submit(ctx, page.ID, []string{"file:///again.jpg"})
	require.NoError(t, err)
	_, _, err = f.scans.Complete(ctx, second.ID, "--kw TODO: new task")
	require.NoError(t, err)
	require.NoError(t, f.router.RouteJob(ctx, second.ID))

	content, err := f.router.Content(ctx, page.ID)
	require.NoError(t, err)

	var texts []string
	for _, it := range content.TaskItems {
		texts = append(texts, it.Text)
	}
	assert.ElementsMatch(t, []string{"new task", "finished task"}, texts)
	assert.Empty(t, content.CalendarEvents)
	require.NotNil(t, content.Transcript)
	assert.Equal(t, second.ID, content.Transcript.JobID)
	assert.Equal(t, "new task", content.Transcript.CleanedText)
}

func TestContentRouter_RouteJobSkipsWhenNewerScanRouted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	page, first := completedJob(t, f, uuid.New(), "--kw TODO: old task\n--kw CAL: old event")

	second, err := f.scans.Submit(ctx, page.ID, []string{"file:///again.jpg"})
	require.NoError(t, err)
	f.db.mu.Lock()
	f.db.jobs[second.ID].CreatedAt = first.CreatedAt.Add(time.Minute)
	f.db.mu.Unlock()
	_, _, err = f.scans.Complete(ctx, second.ID, "--kw TODO: new task")
	require.NoError(t, err)
	require.NoError(t, f.router.RouteJob(ctx, second.ID))

	// The first job's routing runs late, after the rescan was routed.
	require.NoError(t, f.router.RouteJob(ctx, first.ID))

	got, err := f.scans.GetJob(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoutingStateFailed, got.RoutingState)
	assert.Equal(t, errNewerScanRouted.Error(), got.RoutingError)
	assert.Equal(t, 1, f.recorder.routed[routingOutcomeStale])

	content, err := f.router.Content(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, content.TaskItems, 1)
	assert.Equal(t, "new task", content.TaskItems[0].Text)
	assert.Empty(t, content.CalendarEvents)
	require.NotNil(t, content.Transcript)
	assert.Equal(t, second.ID, content.Transcript.JobID)
}

func TestContentRouter_EmptyOutput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture()
	owner := uuid.New()
	page, job := completedJob(t, f, owner, "")

	result, err := f.router.Route(ctx, owner, page.NotebookID, page.ID, job.ID, annotation.Parse(""))
	require.NoError(t, err)
	assert.Equal(t, RoutingResult{}, result)

	content, err := f.router.Content(ctx, page.ID)
	require.NoError(t, err)
	assert.Empty(t, content.TaskItems)
	assert.Empty(t, content.CalendarEvents)
	require.NotNil(t, content.Transcript)
	assert.Empty(t, content.Transcript.CleanedText)
}
