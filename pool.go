package phxsocket

import "sync"

// pool is a fixed-size task queue. With one worker (the default) it is a
// single serialized event queue: every task submitted to it runs to
// completion before the next one starts, in submission order. The socket
// relies on that ordering for all of its state transitions.
type pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// poolQueueDepth bounds the task backlog. submit blocks once the queue
// is full, so a running task must never enqueue anywhere near this much
// follow-up work itself: with a single worker that would wedge the
// pool. Socket tasks submit at most one task each, well under the
// bound.
const poolQueueDepth = 256

func newPool(size int) *pool {
	if size < 1 {
		size = 1
	}

	p := &pool{
		tasks: make(chan func(), poolQueueDepth),
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}

	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// submit enqueues a task. Tasks submitted after stop are dropped.
func (p *pool) submit(task func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return
	}
	p.tasks <- task
}

// stop closes the queue and waits for queued tasks to drain. Idempotent.
func (p *pool) stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
