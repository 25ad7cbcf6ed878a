package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/platform/logger"
)

// ErrQueueFull is returned by Submit when the in-memory queue has no room.
// The task stays persisted as pending and is queued by the next periodic
// check once there is room.
var ErrQueueFull = errors.New("task queue is full, try again later")

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks and
	// for pending tasks that never made it into the queue.
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// TaskRunner manages background task processing
type TaskRunner struct {
	store      TaskStore
	rehydrator Rehydrator
	taskChan   chan Task
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	errHandler func(task Task, err error)

	// queued holds the IDs of tasks sitting in taskChan.
	queuedMu sync.Mutex
	queued   map[uuid.UUID]struct{}
}

// NewTaskRunner creates a new TaskRunner. rehydrator may be nil, in which
// case recovered tasks cannot run and are marked failed.
func NewTaskRunner(
	store TaskStore,
	rehydrator Rehydrator,
	config TaskRunnerConfig,
	log *slog.Logger,
) *TaskRunner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "task_runner")

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      store,
		rehydrator: rehydrator,
		taskChan:   make(chan Task, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     log,
		queued:     make(map[uuid.UUID]struct{}),
		errHandler: func(task Task, err error) {
			log.Error("task execution failed",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		},
	}
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// Submit persists a task and adds it to the queue.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	// Marked before saving so the periodic check never sees the task pending
	// and unqueued while it is on its way into the queue.
	r.markQueued(task.ID(), true)
	if err := r.store.SaveTask(ctx, task); err != nil {
		r.markQueued(task.ID(), false)
		return fmt.Errorf("failed to save task: %w", err)
	}

	select {
	case r.taskChan <- task:
		return nil
	default:
		r.markQueued(task.ID(), false)
		logger.FromContextOrDefault(ctx, r.logger).Warn("task persisted but queue is full",
			"task_id", task.ID(),
			"task_type", task.Type())
		return ErrQueueFull
	}
}

// Start recovers unfinished tasks and starts the workers.
func (r *TaskRunner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop signals workers to finish and waits for them. Queued tasks that did
// not start remain pending in the store.
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
}

// Recover loads unfinished tasks from the store, rebuilds them and queues them.
// Tasks left processing by a crash are reset to pending first.
func (r *TaskRunner) Recover() error {
	ctx := r.ctx

	pendingTasks, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	processingTasks, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pendingTasks),
		"processing_count", len(processingTasks))

	for _, task := range processingTasks {
		if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusPending, "reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing task status",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
			continue
		}
		pendingTasks = append(pendingTasks, task)
	}

	for _, stored := range pendingTasks {
		task, ok := r.rehydrate(ctx, stored)
		if !ok {
			continue
		}
		r.enqueue(task, "recovered")
	}

	return nil
}

// rehydrate rebuilds a stored task. Tasks that cannot be rebuilt are marked
// failed so they are not retried forever.
func (r *TaskRunner) rehydrate(ctx context.Context, stored Task) (Task, bool) {
	if _, isRecord := stored.(*Record); !isRecord {
		return stored, true
	}

	var err error
	var task Task
	if r.rehydrator == nil {
		err = ErrNotRehydrated
	} else {
		task, err = r.rehydrator.Rehydrate(stored)
	}
	if err == nil {
		return task, true
	}

	r.logger.Error("failed to rehydrate task",
		"task_id", stored.ID(),
		"task_type", stored.Type(),
		"error", err)
	if updateErr := r.store.UpdateTaskStatus(ctx, stored.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
		r.logger.Error("failed to mark unrecoverable task failed",
			"task_id", stored.ID(),
			"error", updateErr)
	}
	return nil, false
}

func (r *TaskRunner) enqueue(task Task, reason string) {
	r.markQueued(task.ID(), true)
	select {
	case r.taskChan <- task:
		r.logger.Debug("queued task",
			"task_id", task.ID(),
			"task_type", task.Type(),
			"reason", reason)
	default:
		r.markQueued(task.ID(), false)
		r.logger.Error("failed to queue task, queue is full",
			"task_id", task.ID(),
			"task_type", task.Type(),
			"reason", reason)
	}
}

func (r *TaskRunner) markQueued(id uuid.UUID, queued bool) {
	r.queuedMu.Lock()
	defer r.queuedMu.Unlock()
	if queued {
		r.queued[id] = struct{}{}
	} else {
		delete(r.queued, id)
	}
}

func (r *TaskRunner) isQueued(id uuid.UUID) bool {
	r.queuedMu.Lock()
	defer r.queuedMu.Unlock()
	_, ok := r.queued[id]
	return ok
}

// worker processes tasks from the queue
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case task := <-r.taskChan:
			r.processTask(task, id)
		}
	}
}

// processTask handles execution of a single task
func (r *TaskRunner) processTask(task Task, workerID int) {
	log := r.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)
	ctx := logger.WithLogger(context.Background(), log)

	err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusProcessing, "")
	r.markQueued(task.ID(), false)
	if err != nil {
		log.Error("failed to update task status to processing", "error", err)
		return
	}

	log.Info("processing task")

	if err := r.execute(ctx, task); err != nil {
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to update task status to failed", "error", updateErr)
		}
		r.errHandler(task, err)
		return
	}

	log.Info("task completed successfully")
	if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusCompleted, ""); updateErr != nil {
		log.Error("failed to update task status to completed", "error", updateErr)
	}
}

// execute runs a task, turning a panic into an error.
func (r *TaskRunner) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return task.Execute(ctx)
}

// stuckTaskMonitor periodically resets tasks that have been in "processing"
// state for too long and queues pending tasks the queue had no room for.
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.resetStuckTasks()
			r.requeuePendingTasks()
		}
	}
}

func (r *TaskRunner) resetStuckTasks() {
	ctx := r.ctx

	stuckTasks, err := r.store.GetProcessingTasks(ctx, r.config.StuckTaskAge)
	if err != nil {
		r.logger.Error("failed to check for stuck tasks", "error", err)
		return
	}
	if len(stuckTasks) == 0 {
		return
	}

	r.logger.Info("found stuck tasks", "count", len(stuckTasks))
	for _, stored := range stuckTasks {
		if err := r.store.UpdateTaskStatus(ctx, stored.ID(), TaskStatusPending,
			"reset after being stuck in processing state"); err != nil {
			r.logger.Error("failed to reset stuck task status",
				"task_id", stored.ID(),
				"task_type", stored.Type(),
				"error", err)
			continue
		}
		if task, ok := r.rehydrate(ctx, stored); ok {
			r.enqueue(task, "stuck")
		}
	}
}

// requeuePendingTasks queues pending tasks that are stored but not queued.
func (r *TaskRunner) requeuePendingTasks() {
	ctx := r.ctx

	pending, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		r.logger.Error("failed to check for unqueued pending tasks", "error", err)
		return
	}

	for _, stored := range pending {
		if r.isQueued(stored.ID()) {
			continue
		}
		if task, ok := r.rehydrate(ctx, stored); ok {
			r.enqueue(task, "unqueued")
		}
	}
}
