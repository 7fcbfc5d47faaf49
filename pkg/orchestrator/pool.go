package orchestrator

import (
	"context"
	"log"
	"sync"

	"pricepilot/pkg/models"
)

// Pool is a fixed set of long-lived workers. A panicking task is logged and
// dropped; the worker keeps serving.
type Pool struct {
	size  int
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:  size,
		tasks: make(chan func(), size),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		runSafely(task)
	}
}

func runSafely(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[POOL] task panicked: %v", r)
		}
	}()
	task()
}

// Submit queues task, blocking while every worker is busy and the queue is
// full. It fails with models.ErrPoolClosed after Close.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return models.ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued and running ones.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
