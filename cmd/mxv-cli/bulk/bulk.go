// Package bulk bounds the concurrency of batch verification runs.
package bulk

import (
	"github.com/gammazero/workerpool"
)

// NewRunner returns a Runner executing tasks on at most workers goroutines.
// Fewer than one worker is treated as one.
func NewRunner(workers int) *Runner {
	if workers < 1 {
		workers = 1
	}

	return &Runner{
		pool: workerpool.New(workers),
	}
}

type Runner struct {
	pool *workerpool.WorkerPool
}

// Submit queues a task. It never blocks, the pool maintains its own backlog.
func (r *Runner) Submit(task func()) {
	r.pool.Submit(task)
}

// Wait blocks until all submitted tasks have run. The Runner can't be used
// afterwards.
func (r *Runner) Wait() {
	r.pool.StopWait()
}
