// Package flow provides the concurrency and rate-limit primitives for
// the ingestion pipeline: a fixed-size worker pool pulling from a
// shared queue, and a request throttle for external calls.
package flow

import (
	"context"
	"sync"
)

// WorkerPool runs submitted tasks on a fixed number of workers. Work
// units share one queue; the pool never spawns a goroutine per task.
type WorkerPool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWorkerPool creates and starts a pool of the given size.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		workers: workers,
		tasks:   make(chan func(), workers*10),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			task()
		}
	}
}

// Submit queues a task, blocking when the queue is full.
func (p *WorkerPool) Submit(task func()) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.tasks <- task:
		return nil
	}
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.workers
}

// Close stops accepting work and waits for the workers to exit. Queued
// tasks that have not started are dropped. The task channel is never
// closed, so Close is safe against a concurrent Submit; workers exit
// through context cancellation alone.
func (p *WorkerPool) Close() {
	p.cancel()
	p.wg.Wait()
}
