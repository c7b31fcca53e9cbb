// Package tasks provides the bounded worker pool behind fire-and-forget
// delivery.
//
// Submitting never blocks: when the queue is full the task is dropped and
// the caller told so, the same drop-not-stall discipline the daemon's other
// channels use. Drain stops intake and waits a bounded grace period for
// queued and in-flight work, then gives up on stragglers.
package tasks

import (
	"sync"
	"time"
)

// Pool runs submitted funcs on a fixed set of workers.
type Pool struct {
	mu     sync.RWMutex // guards closed vs. the close of ch
	ch     chan func()
	closed bool
	wg     sync.WaitGroup
}

// New starts `workers` goroutines servicing a queue of capacity `queue`.
func New(workers, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{ch: make(chan func(), queue)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for fn := range p.ch {
				fn()
			}
		}()
	}
	return p
}

// Submit queues fn for execution. Returns false, dropping fn, when the
// queue is full or the pool is draining.
func (p *Pool) Submit(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.ch <- fn:
		return true
	default:
		return false
	}
}

// Drain stops intake and waits up to grace for queued and in-flight tasks
// to finish. Reports whether everything completed. Safe to call more than
// once.
func (p *Pool) Drain(grace time.Duration) bool {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
