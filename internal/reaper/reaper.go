// Package reaper fails scan jobs that have waited on the recognition worker
// for too long. It runs ScanService.ReapStale on a cron schedule.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/pagescan/internal/redact"
	"github.com/robfig/cron/v3"
)

// JobReaper fails unresolved jobs older than a cutoff.
type JobReaper interface {
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Scheduler runs a JobReaper on a schedule.
type Scheduler struct {
	reaper  JobReaper
	timeout time.Duration
	cron    *cron.Cron
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New parses schedule, a standard five-field cron spec or a descriptor such
// as "@every 1m", and prepares a scheduler that fails jobs idle for longer
// than timeout.
func New(reaper JobReaper, schedule string, timeout time.Duration, log *slog.Logger) (*Scheduler, error) {
	if reaper == nil {
		return nil, errors.New("reaper cannot be nil")
	}
	if timeout <= 0 {
		return nil, errors.New("timeout must be positive")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "reaper")

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", schedule, err)
	}

	cl := cronLogger{log}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		reaper:  reaper,
		timeout: timeout,
		cron:    c,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
	}
	c.Schedule(sched, cron.FuncJob(s.tick))
	return s, nil
}

// Start begins running on the schedule.
func (s *Scheduler) Start() {
	s.logger.Info("starting reaper", "timeout", s.timeout)
	s.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("reaper stopped")
	case <-ctx.Done():
		s.logger.Warn("reaper stop timed out")
	}
}

// RunOnce performs one pass immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reaper.ReapStale(ctx, s.timeout)
}

func (s *Scheduler) tick() {
	n, err := s.RunOnce(s.ctx)
	if err != nil {
		s.logger.Error("reaper pass failed", "error", redact.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("reaper pass timed out jobs", "count", n)
	}
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
