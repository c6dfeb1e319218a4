package queue

import (
	"context"
	"sync"

	"github.com/ocrflow/ocrflow-backend/pkg/errors"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// Task is a unit of work with a stable identifier
type Task struct {
	ID  string
	Run func(ctx context.Context)
}

// TaskQueue executes tasks strictly one at a time in submission order.
// OCR is memory-heavy; a single worker keeps peak usage bounded and makes
// batch ordering deterministic. The worker count is fixed at one.
type TaskQueue struct {
	mu      sync.Mutex
	tasks   chan Task
	cancels map[string]context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
	log     *logger.Logger
}

// New creates a task queue with the given buffer and starts its worker
func New(buffer int, log *logger.Logger) *TaskQueue {
	if buffer <= 0 {
		buffer = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &TaskQueue{
		tasks:   make(chan Task, buffer),
		cancels: make(map[string]context.CancelFunc),
		baseCtx: ctx,
		cancel:  cancel,
		log:     log.WithComponent("task-queue"),
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *TaskQueue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		taskCtx, taskCancel := context.WithCancel(q.baseCtx)

		q.mu.Lock()
		q.cancels[task.ID] = taskCancel
		q.mu.Unlock()

		q.log.Debug().Str("task_id", task.ID).Msg("task started")
		task.Run(taskCtx)
		q.log.Debug().Str("task_id", task.ID).Msg("task finished")

		q.mu.Lock()
		delete(q.cancels, task.ID)
		q.mu.Unlock()
		taskCancel()
	}
}

// Submit enqueues a task. It fails when the queue is stopped or full rather
// than blocking the caller.
func (q *TaskQueue) Submit(task Task) error {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return errors.Conflict("task queue is shut down")
	}

	select {
	case q.tasks <- task:
		q.log.Debug().Str("task_id", task.ID).Int("pending", len(q.tasks)).Msg("task queued")
		return nil
	default:
		return errors.Conflict("task queue is full")
	}
}

// Cancel cancels the task's context if the task is currently running.
// Queued tasks are left alone; their Run decides what a cancelled batch
// means when it eventually executes.
func (q *TaskQueue) Cancel(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cancel, ok := q.cancels[taskID]; ok {
		cancel()
		return true
	}
	return false
}

// Pending returns the number of tasks waiting behind the current one
func (q *TaskQueue) Pending() int {
	return len(q.tasks)
}

// Stop rejects new submissions, cancels the running task, and waits for the
// worker to drain.
func (q *TaskQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	close(q.tasks)
	q.wg.Wait()
	q.log.Info().Msg("task queue stopped")
}
