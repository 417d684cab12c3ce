package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starfleetai/bridge/pkg/config"
	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/repo"
)

// Worker is a single queue worker that polls for and executes root tasks.
type Worker struct {
	id       string
	store    *repo.Store
	emitter  events.Emitter
	executor TaskExecutor
	cfg      *config.Config
	pool     TaskRegistry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu             sync.RWMutex
	status         WorkerStatus
	currentTaskID  uuid.UUID
	tasksProcessed int
	lastActivity   time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id string, store *repo.Store, emitter events.Emitter, executor TaskExecutor, cfg *config.Config, pool TaskRegistry) *Worker {
	return &Worker{
		id:           id,
		store:        store,
		emitter:      emitter,
		executor:     executor,
		cfg:          cfg,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. Safe to call
// multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, repo.ErrNoRootTasks) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error executing task", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// pollAndProcess claims the next root task and executes it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	task, err := w.store.Tasks.ClaimRoot(ctx)
	if err != nil {
		return err
	}
	w.emitter.Emit(ctx, task.TenantID, events.KindTaskUpdated, task)

	log := slog.With("task_id", task.ID, "worker_id", w.id)
	log.Info("Task claimed")

	w.setStatus(WorkerStatusWorking, task.ID)
	defer w.setStatus(WorkerStatusIdle, uuid.Nil)

	taskCtx, cancelTask := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancelTask()

	w.pool.RegisterTask(task.ID, cancelTask)
	defer w.pool.UnregisterTask(task.ID)

	if err := w.executor.ExecuteRoot(taskCtx, &task); err != nil {
		return fmt.Errorf("executing root task %s: %w", task.ID, err)
	}

	w.mu.Lock()
	w.tasksProcessed++
	w.mu.Unlock()

	log.Info("Task execution complete", "status", task.Status)
	return nil
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the poll duration with jitter in
// [base - jitter, base + jitter].
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, taskID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTaskID = taskID
	w.lastActivity = time.Now()
}
