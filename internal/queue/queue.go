// Package queue is the in-process task scheduler for delivery work. The
// router enqueues one task per matched subscription; a fixed pool of worker
// goroutines drains them. Tasks are independent and unordered: two tasks for
// the same subscription may run in parallel or out of order, and nothing in
// the engine depends on their relative order.
package queue

import (
	"context"
	"log/slog"
	"sync"
)

// Task is one unit of fire-and-forget work.
type Task func(ctx context.Context)

type Config struct {
	Workers int
	Buffer  int
}

func DefaultConfig() Config {
	return Config{
		Workers: 10,
		Buffer:  1024,
	}
}

// Queue manages the worker goroutines. Use New to create, Start to begin
// draining, and Stop for graceful shutdown.
type Queue struct {
	config Config
	tasks  chan Task
	logger *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

func New(config Config, logger *slog.Logger) *Queue {
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		config: config,
		tasks:  make(chan Task, config.Buffer),
		logger: logger,
	}
}

func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	q.logger.Info("task queue started", "workers", q.config.Workers, "buffer", q.config.Buffer)
}

// Stop closes the queue and waits for in-flight tasks to finish. Buffered
// tasks that have not started yet are drained and run before return.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
	q.logger.Info("task queue stopped")
}

// Enqueue schedules a task. Returns false when the queue has been stopped;
// callers treat that as a drop, matching the at-least-once contract of the
// upstream event bus (an unscheduled task will be redelivered).
func (q *Queue) Enqueue(task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	q.tasks <- task
	return true
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for task := range q.tasks {
		if ctx.Err() != nil {
			q.logger.Debug("queue worker draining after cancel", "worker_id", id)
		}
		task(ctx)
	}
}
