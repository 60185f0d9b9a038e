package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

var ErrPoolStopped = errors.New("pool is stopped")

// Executor runs a single work item.
type Executor interface {
	Execute(ctx context.Context, item Item) error
}

type ExecutorFunc func(ctx context.Context, item Item) error

func (f ExecutorFunc) Execute(ctx context.Context, item Item) error {
	return f(ctx, item)
}

// Pool runs work items on a fixed number of workers that share one FIFO
// queue. Enqueue never blocks. Stop lets the workers finish everything that
// was enqueued before it was called.
type Pool struct {
	size   int
	exec   Executor
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Item
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(size int, exec Executor, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:   size,
		exec:   exec,
		logger: logger,
	}
	p.cond = sync.NewCond(&p.mu)

	return p
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.logger.Info("starting worker pool", slog.Int("workers", p.size))
	for n := 0; n < p.size; n++ {
		p.wg.Add(1)
		go p.worker(ctx, n)
	}
}

func (p *Pool) Enqueue(item Item) error {
	if item == nil {
		return errors.New("nil work item")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	p.queue = append(p.queue, item)
	p.cond.Signal()

	return nil
}

// Len returns the number of items waiting for a worker.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stop refuses new work, queues one Shutdown per worker behind everything
// already waiting and blocks until all workers have exited. Items queued on
// a pool that was never started still run before Stop returns.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		p.logger.Info("stopping worker pool", slog.Int("pending", len(p.queue)))
		if !p.started && len(p.queue) > 0 {
			p.started = true
			for n := 0; n < p.size; n++ {
				p.wg.Add(1)
				go p.worker(context.Background(), n)
			}
		}
		if p.started {
			for n := 0; n < p.size; n++ {
				p.queue = append(p.queue, Shutdown{})
			}
			p.cond.Broadcast()
		}
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) next() Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 {
		p.cond.Wait()
	}
	item := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]

	return item
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	logger := p.logger.With(slog.Int("worker", n))

	for {
		item := p.next()
		if _, ok := item.(Shutdown); ok {
			logger.Debug("worker shutting down")
			return
		}
		if err := p.run(ctx, item); err != nil {
			logger.Error("work item failed", slog.String("kind", item.Kind()), slog.Any("item", item), slog.String("error", err.Error()))
		}
	}
}

// run executes one item. A panic is turned into an error so the worker
// survives it.
func (p *Pool) run(ctx context.Context, item Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	return p.exec.Execute(ctx, item)
}
