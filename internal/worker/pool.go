// Package worker runs per-trial parse jobs out of band on a bounded pool and
// throttles model-assisted parser calls per provider.
package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool manages a pool of workers that execute jobs concurrently.
// Batch callers Submit then Wait; long-lived callers (the API server) drain
// Results and call Close on shutdown.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once

	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool
}

// NewPool creates a new worker pool with the specified number of workers.
// The queue holds twice as many jobs as there are workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return NewPoolWithQueue(workers, workers*2)
}

// NewPoolWithQueue creates a pool with an explicit queue depth
func NewPoolWithQueue(workers, depth int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if depth < 0 {
		depth = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, depth),
		results:    make(chan Result, depth),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job, blocking while the queue is full. It returns without
// queuing once the pool is closed or shut down.
func (p *Pool) Submit(job Job) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case <-p.ctx.Done():
		return
	case p.jobQueue <- job:
	}
}

// TrySubmit queues a job without blocking. It reports false when the queue is
// full or the pool is shut down.
func (p *Pool) TrySubmit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.ctx.Err() != nil {
		return false
	}
	select {
	case p.jobQueue <- job:
		return true
	default:
		return false
	}
}

// Results streams job results as they complete. The channel closes after
// Close, Wait or Shutdown once every worker has exited.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Wait waits for all jobs to complete and returns the results
func (p *Pool) Wait() []Result {
	p.closeQueue()

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}

	return results
}

// Close stops accepting jobs and waits for queued jobs to finish. Results must
// be drained concurrently.
func (p *Pool) Close() {
	p.closeQueue()
	p.wg.Wait()
	p.closeResults()
}

// Shutdown shuts down the worker pool immediately
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
