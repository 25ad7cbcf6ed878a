package task

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
)

// memoryTaskStore is an in-memory TaskStore.
type memoryTaskStore struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]*Record
	statuses []TaskStatus
	saveErr  error
}

func newMemoryTaskStore() *memoryTaskStore {
	return &memoryTaskStore{tasks: make(map[uuid.UUID]*Record)}
}

func (s *memoryTaskStore) SaveTask(ctx context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	now := time.Now().UTC()
	s.tasks[t.ID()] = &Record{
		TaskID:    t.ID(),
		TaskType:  t.Type(),
		Data:      t.Payload(),
		State:     TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *memoryTaskStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status TaskStatus, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return nil
	}
	rec.State = status
	rec.ErrorMessage = msg
	rec.UpdatedAt = time.Now().UTC()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *memoryTaskStore) byStatus(status TaskStatus, olderThan time.Duration) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, rec := range s.tasks {
		if rec.State != status {
			continue
		}
		if olderThan > 0 && time.Since(rec.UpdatedAt) < olderThan {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

func (s *memoryTaskStore) GetPendingTasks(ctx context.Context) ([]Task, error) {
	return s.byStatus(TaskStatusPending, 0), nil
}

func (s *memoryTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]Task, error) {
	return s.byStatus(TaskStatusProcessing, olderThan), nil
}

func (s *memoryTaskStore) WithTx(tx *sql.Tx) TaskStore { return s }

func (s *memoryTaskStore) status(id uuid.UUID) TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.tasks[id]; ok {
		return rec.State
	}
	return ""
}

func (s *memoryTaskStore) put(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[rec.TaskID] = rec
}

// funcTask runs fn on Execute.
type funcTask struct {
	id uuid.UUID
	fn func(ctx context.Context) error
}

func newFuncTask(fn func(ctx context.Context) error) *funcTask {
	return &funcTask{id: uuid.New(), fn: fn}
}

func (t *funcTask) ID() uuid.UUID                     { return t.id }
func (t *funcTask) Type() string                      { return "func" }
func (t *funcTask) Payload() []byte                   { return []byte(`{}`) }
func (t *funcTask) Status() TaskStatus                { return TaskStatusPending }
func (t *funcTask) Execute(ctx context.Context) error { return t.fn(ctx) }

// fakeJobs serves jobs from a map.
type fakeJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.ScanJob
}

func (f *fakeJobs) GetJob(ctx context.Context, id uuid.UUID) (*domain.ScanJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	cp := *job
	return &cp, nil
}

// recordingDispatcher records dispatched job ids.
type recordingDispatcher struct {
	mu   sync.Mutex
	ids  []uuid.UUID
	err  error
	done chan uuid.UUID
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, job *domain.ScanJob) error {
	d.mu.Lock()
	d.ids = append(d.ids, job.ID)
	d.mu.Unlock()
	if d.done != nil {
		d.done <- job.ID
	}
	return d.err
}

func (d *recordingDispatcher) dispatched() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.ids...)
}

// recordingRouter records routed job ids.
type recordingRouter struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (r *recordingRouter) RouteJob(ctx context.Context, jobID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, jobID)
	return r.err
}
