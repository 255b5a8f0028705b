package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Task is one unit of fan-out work. It receives the pool context, which is
// cancelled when the caller gives up.
type Task func(ctx context.Context) error

type job struct {
	key  string
	task Task
}

// PoolStats counts what the workers actually ran
type PoolStats struct {
	Succeeded int64
	Failed    int64
}

// WorkerPool runs keyed tasks on a bounded set of goroutines
type WorkerPool struct {
	size   int
	jobs   chan job
	wg     sync.WaitGroup
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a pool bound to ctx; cancelling ctx stops the workers
func NewWorkerPool(ctx context.Context, size int, logger *slog.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	poolCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		size:   size,
		jobs:   make(chan job, size*2),
		ctx:    poolCtx,
		cancel: cancel,
		logger: logger,
	}
}

func (wp *WorkerPool) Start() {
	wp.wg.Add(wp.size)
	for i := range wp.size {
		go wp.work(i)
	}
}

// Submit queues task under key (used in logs). It returns false once the
// pool context is done, in which case the task never runs.
func (wp *WorkerPool) Submit(key string, task Task) bool {
	if wp.ctx.Err() != nil {
		return false
	}
	select {
	case wp.jobs <- job{key: key, task: task}:
		return true
	case <-wp.ctx.Done():
		return false
	}
}

// Wait stops accepting work, drains the queue and reports the totals.
// Calling it again returns the same totals.
func (wp *WorkerPool) Wait() PoolStats {
	wp.once.Do(func() { close(wp.jobs) })
	wp.wg.Wait()
	wp.cancel()
	return PoolStats{Succeeded: wp.succeeded.Load(), Failed: wp.failed.Load()}
}

func (wp *WorkerPool) work(id int) {
	defer wp.wg.Done()

	for j := range wp.jobs {
		if wp.ctx.Err() != nil {
			// keep draining so Wait returns; nothing more runs
			continue
		}
		if err := j.task(wp.ctx); err != nil {
			wp.failed.Add(1)
			wp.logger.Debug("worker_task_failed", "worker", id, "key", j.key, "error", err.Error())
			continue
		}
		wp.succeeded.Add(1)
	}
}
