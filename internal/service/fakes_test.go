package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/events"
	"github.com/phrazzld/pagescan/internal/store"
	"github.com/phrazzld/pagescan/internal/token"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTx runs fn without a real transaction.
type fakeTx struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTx) RunInTransaction(ctx context.Context, fn store.TxFn) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return fn(ctx, nil)
}

// memDB is shared state behind the in-memory stores.
type memDB struct {
	mu          sync.Mutex
	seq         int
	notebooks   map[uuid.UUID]*domain.Notebook
	pages       map[uuid.UUID]*domain.Page
	jobs        map[uuid.UUID]*domain.ScanJob
	jobSeq      map[uuid.UUID]int
	taskItems   map[contentKey]*domain.TaskItem
	calendar    map[contentKey]*domain.CalendarEvent
	transcripts map[uuid.UUID]*domain.PageTranscript
}

type contentKey struct {
	jobID    uuid.UUID
	position int
}

func newMemDB() *memDB {
	return &memDB{
		notebooks:   map[uuid.UUID]*domain.Notebook{},
		pages:       map[uuid.UUID]*domain.Page{},
		jobs:        map[uuid.UUID]*domain.ScanJob{},
		jobSeq:      map[uuid.UUID]int{},
		taskItems:   map[contentKey]*domain.TaskItem{},
		calendar:    map[contentKey]*domain.CalendarEvent{},
		transcripts: map[uuid.UUID]*domain.PageTranscript{},
	}
}

func copyPage(p *domain.Page) *domain.Page {
	cp := *p
	cp.Images = append([]domain.ImageRef{}, p.Images...)
	if p.TokenRevokedAt != nil {
		t := *p.TokenRevokedAt
		cp.TokenRevokedAt = &t
	}
	return &cp
}

func copyJob(j *domain.ScanJob) *domain.ScanJob {
	cp := *j
	cp.ImageURLs = append([]string{}, j.ImageURLs...)
	if j.RawText != nil {
		s := *j.RawText
		cp.RawText = &s
	}
	if j.Structured != nil {
		s := *j.Structured
		cp.Structured = &s
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}

// memNotebookStore implements store.NotebookStore.
type memNotebookStore struct{ db *memDB }

func (s *memNotebookStore) Create(ctx context.Context, n *domain.Notebook) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *n
	s.db.notebooks[n.ID] = &cp
	return nil
}

func (s *memNotebookStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notebook, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n, ok := s.db.notebooks[id]
	if !ok {
		return nil, store.ErrNotebookNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *memNotebookStore) WithTx(*sql.Tx) store.NotebookStore { return s }

// memPageStore implements store.PageStore.
type memPageStore struct{ db *memDB }

func (s *memPageStore) Create(ctx context.Context, p *domain.Page) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.notebooks[p.NotebookID]; !ok {
		return store.ErrNotebookNotFound
	}
	for _, existing := range s.db.pages {
		if existing.Token == p.Token {
			return store.ErrTokenExists
		}
		if existing.NotebookID == p.NotebookID && existing.PageIndex == p.PageIndex {
			return store.ErrPageIndexExists
		}
	}
	s.db.pages[p.ID] = copyPage(p)
	return nil
}

func (s *memPageStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Page, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.pages[id]
	if !ok {
		return nil, store.ErrPageNotFound
	}
	return copyPage(p), nil
}

func (s *memPageStore) GetByToken(ctx context.Context, tok string) (*domain.Page, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.pages {
		if p.Token == tok {
			return copyPage(p), nil
		}
	}
	return nil, store.ErrPageNotFound
}

func (s *memPageStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.Page, error) {
	return s.GetByID(ctx, id)
}

func (s *memPageStore) ListByNotebook(ctx context.Context, notebookID uuid.UUID) ([]*domain.Page, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*domain.Page{}
	for _, p := range s.db.pages {
		if p.NotebookID == notebookID {
			out = append(out, copyPage(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageIndex < out[j].PageIndex })
	return out, nil
}

func (s *memPageStore) AppendImage(ctx context.Context, pageID uuid.UUID, ref domain.ImageRef) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.pages[pageID]
	if !ok {
		return store.ErrPageNotFound
	}
	p.Images = append(p.Images, ref)
	return nil
}

func (s *memPageStore) UpdateToken(ctx context.Context, pageID uuid.UUID, tok string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.pages {
		if p.Token == tok {
			return store.ErrTokenExists
		}
	}
	p, ok := s.db.pages[pageID]
	if !ok {
		return store.ErrPageNotFound
	}
	p.Token = tok
	p.TokenRevokedAt = nil
	return nil
}

func (s *memPageStore) RevokeToken(ctx context.Context, pageID uuid.UUID, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.pages[pageID]
	if !ok {
		return store.ErrPageNotFound
	}
	if p.TokenRevokedAt == nil {
		t := at.UTC()
		p.TokenRevokedAt = &t
	}
	return nil
}

func (s *memPageStore) WithTx(*sql.Tx) store.PageStore { return s }

// memScanJobStore implements store.ScanJobStore.
type memScanJobStore struct{ db *memDB }

func (s *memScanJobStore) Create(ctx context.Context, j *domain.ScanJob) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.pages[j.PageID]; !ok {
		return store.ErrPageNotFound
	}
	for _, existing := range s.db.jobs {
		if existing.PageID == j.PageID && !existing.IsTerminal() {
			return store.ErrUnresolvedJobExists
		}
	}
	s.db.seq++
	s.db.jobSeq[j.ID] = s.db.seq
	s.db.jobs[j.ID] = copyJob(j)
	return nil
}

func (s *memScanJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScanJob, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	j, ok := s.db.jobs[id]
	if !ok {
		return nil, store.ErrScanJobNotFound
	}
	return copyJob(j), nil
}

func (s *memScanJobStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.ScanJob, error) {
	return s.GetByID(ctx, id)
}

func (s *memScanJobStore) byPage(pageID uuid.UUID) []*domain.ScanJob {
	var out []*domain.ScanJob
	for _, j := range s.db.jobs {
		if j.PageID == pageID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return s.db.jobSeq[out[a].ID] < s.db.jobSeq[out[b].ID] })
	return out
}

func (s *memScanJobStore) FindUnresolvedByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.ScanJob, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*domain.ScanJob{}
	for _, j := range s.byPage(pageID) {
		if !j.IsTerminal() {
			out = append(out, copyJob(j))
		}
	}
	return out, nil
}

func (s *memScanJobStore) GetLatestByPage(ctx context.Context, pageID uuid.UUID) (*domain.ScanJob, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	jobs := s.byPage(pageID)
	if len(jobs) == 0 {
		return nil, store.ErrScanJobNotFound
	}
	for _, j := range jobs {
		if !j.IsTerminal() {
			return copyJob(j), nil
		}
	}
	return copyJob(jobs[len(jobs)-1]), nil
}

func (s *memScanJobStore) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.ScanJob, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*domain.ScanJob{}
	for _, j := range s.db.jobs {
		if !j.IsTerminal() && j.UpdatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, copyJob(j))
		}
	}
	return out, nil
}

func (s *memScanJobStore) Update(ctx context.Context, j *domain.ScanJob) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.jobs[j.ID]; !ok {
		return store.ErrScanJobNotFound
	}
	if err := j.Validate(); err != nil {
		return err
	}
	s.db.jobs[j.ID] = copyJob(j)
	return nil
}

func (s *memScanJobStore) WithTx(*sql.Tx) store.ScanJobStore { return s }

// memContentStore implements store.ContentStore.
type memContentStore struct {
	db        *memDB
	failWrite error
}

func (s *memContentStore) UpsertTaskItems(ctx context.Context, items []*domain.TaskItem) (int, error) {
	if s.failWrite != nil {
		return 0, s.failWrite
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, it := range items {
		key := contentKey{it.JobID, it.Position}
		if existing, ok := s.db.taskItems[key]; ok {
			existing.Text = it.Text
			existing.OwnerID = it.OwnerID
			it.ID = existing.ID
			continue
		}
		cp := *it
		s.db.taskItems[key] = &cp
	}
	return len(items), nil
}

func (s *memContentStore) UpsertCalendarEvents(ctx context.Context, events []*domain.CalendarEvent) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, ev := range events {
		key := contentKey{ev.JobID, ev.Position}
		if existing, ok := s.db.calendar[key]; ok {
			existing.Title = ev.Title
			ev.ID = existing.ID
			continue
		}
		cp := *ev
		s.db.calendar[key] = &cp
	}
	return len(events), nil
}

func (s *memContentStore) PruneSupersededContent(ctx context.Context, pageID, jobID uuid.UUID) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	current := s.db.jobSeq[jobID]
	older := func(id uuid.UUID) bool { return s.db.jobSeq[id] < current }
	removed := 0
	for key, it := range s.db.taskItems {
		if it.PageID == pageID && !it.Done && older(it.JobID) {
			delete(s.db.taskItems, key)
			removed++
		}
	}
	for key, ev := range s.db.calendar {
		if ev.PageID == pageID && ev.Status == domain.CalendarEventDraft && older(ev.JobID) {
			delete(s.db.calendar, key)
			removed++
		}
	}
	return removed, nil
}

func (s *memContentStore) UpsertTranscript(ctx context.Context, tr *domain.PageTranscript) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if existing, ok := s.db.transcripts[tr.PageID]; ok && s.db.jobSeq[existing.JobID] > s.db.jobSeq[tr.JobID] {
		return nil
	}
	cp := *tr
	s.db.transcripts[tr.PageID] = &cp
	return nil
}

func (s *memContentStore) GetTranscript(ctx context.Context, pageID uuid.UUID) (*domain.PageTranscript, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	tr, ok := s.db.transcripts[pageID]
	if !ok {
		return nil, store.ErrTranscriptNotFound
	}
	cp := *tr
	return &cp, nil
}

func (s *memContentStore) ListTaskItemsByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.TaskItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*domain.TaskItem{}
	for _, it := range s.db.taskItems {
		if it.PageID == pageID {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := s.db.jobSeq[out[i].JobID], s.db.jobSeq[out[j].JobID]
		if si != sj {
			return si > sj
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (s *memContentStore) ListCalendarEventsByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.CalendarEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*domain.CalendarEvent{}
	for _, ev := range s.db.calendar {
		if ev.PageID == pageID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *memContentStore) WithTx(*sql.Tx) store.ContentStore { return s }

// seqTokens hands out tokens in order, then falls back to generated ones.
type seqTokens struct {
	mu     sync.Mutex
	tokens []string
	next   int
	err    error
}

func (g *seqTokens) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	if g.next < len(g.tokens) {
		tok := g.tokens[g.next]
		g.next++
		return tok, nil
	}
	g.next++
	body := make([]byte, token.BodyLength)
	n := g.next
	for i := len(body) - 1; i >= 0; i-- {
		body[i] = token.Alphabet[n%len(token.Alphabet)]
		n /= len(token.Alphabet)
	}
	return token.Prefix + string(body), nil
}

// captureEmitter records emitted events.
type captureEmitter struct {
	mu     sync.Mutex
	events []*events.TaskRequestEvent
	err    error
}

func (e *captureEmitter) EmitEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.err
}

func (e *captureEmitter) ofType(eventType string) []*events.TaskRequestEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*events.TaskRequestEvent
	for _, ev := range e.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// countingRecorder counts Recorder calls.
type countingRecorder struct {
	mu         sync.Mutex
	submitted  int
	superseded int
	completed  int
	failed     map[domain.JobErrorKind]int
	routed     map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{failed: map[domain.JobErrorKind]int{}, routed: map[string]int{}}
}

func (r *countingRecorder) ScanSubmitted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted++
}

func (r *countingRecorder) ScanSuperseded(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.superseded += n
}

func (r *countingRecorder) ScanCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func (r *countingRecorder) ScanFailed(kind domain.JobErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[kind]++
}

func (r *countingRecorder) ContentRouted(outcome string, tasks, events int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routed[outcome]++
}

// fixture wires every service over one memDB.
type fixture struct {
	db        *memDB
	tx        *fakeTx
	tokens    *seqTokens
	emitter   *captureEmitter
	recorder  *countingRecorder
	notebookS *memNotebookStore
	pageS     *memPageStore
	jobS      *memScanJobStore
	contentS  *memContentStore
	pages     *PageService
	notebooks *NotebookService
	scans     *ScanService
	router    *ContentRouter
	clock     time.Time
}

func newFixture() *fixture {
	f := &fixture{
		db:       newMemDB(),
		tx:       &fakeTx{},
		tokens:   &seqTokens{},
		emitter:  &captureEmitter{},
		recorder: newCountingRecorder(),
		clock:    time.Now().UTC(),
	}
	f.notebookS = &memNotebookStore{db: f.db}
	f.pageS = &memPageStore{db: f.db}
	f.jobS = &memScanJobStore{db: f.db}
	f.contentS = &memContentStore{db: f.db}

	var err error
	f.pages, err = NewPageService(f.tx, f.pageS, f.tokens, quietLogger())
	must(err)
	f.notebooks, err = NewNotebookService(f.tx, f.notebookS, f.pageS, f.tokens, quietLogger())
	must(err)
	f.scans, err = NewScanService(f.tx, f.pageS, f.jobS, f.emitter, quietLogger(),
		WithRecorder(f.recorder),
		WithClock(f.now))
	must(err)
	f.router, err = NewContentRouter(f.tx, f.notebookS, f.pageS, f.jobS, f.contentS, f.recorder, quietLogger())
	must(err)
	f.router.now = f.now
	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// provision creates a notebook owned by ownerID with pageCount pages.
func (f *fixture) provision(ownerID uuid.UUID, pageCount int) (*domain.Notebook, []*domain.Page) {
	nb, pages, err := f.notebooks.Provision(context.Background(), ownerID, "Lab notebook", pageCount)
	must(err)
	return nb, pages
}

var errBoom = errors.New("boom")
