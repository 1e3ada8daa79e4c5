package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"igdmbot/pkg/logger"
	"igdmbot/pkg/models"
)

var (
	// ErrQueueFull is returned by TrySubmit when every slot is taken.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrStopped is returned once the pool is shutting down.
	ErrStopped = errors.New("worker pool is shutting down")
)

// Job is one comment waiting to be dispatched.
type Job struct {
	Comment  models.Comment
	Source   string
	Received time.Time
}

// Result is reported for every job a worker finishes.
type Result struct {
	Job      Job
	Err      error
	Duration time.Duration
}

// Handler processes one job.
type Handler func(ctx context.Context, job Job) error

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Pool runs a fixed number of workers over a bounded queue.
type Pool struct {
	numWorkers int
	jobQueue   chan Job
	handler    Handler
	onResult   func(Result)
	logger     logger.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewPool creates a pool. queueSize <= 0 defaults to twice the worker count.
func NewPool(numWorkers, queueSize int, handler Handler, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 2
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, queueSize),
		handler:    handler,
		logger:     log.WithField("component", "worker_pool"),
	}
}

// OnResult registers fn to receive every result. Call before Start.
func (p *Pool) OnResult(fn func(Result)) {
	p.onResult = fn
}

// Start launches the workers. Handlers receive a context derived from ctx.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
		"queue_size":  cap(p.jobQueue),
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops accepting jobs, lets the workers drain the queue and waits for
// them. It is safe to call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool...")
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("Worker pool stopped")
}

// Submit queues job, waiting for a free slot until ctx is done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}

	select {
	case p.jobQueue <- job:
		p.submitted.Add(1)
		p.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"comment_id": job.Comment.ID,
			"source":     job.Source,
		})
		return nil
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	}
}

// TrySubmit queues job without blocking.
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}

	select {
	case p.jobQueue <- job:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// Stats returns queue and throughput counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.numWorkers,
		Queued:    len(p.jobQueue),
		Capacity:  cap(p.jobQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.DebugWithFields("Worker started", map[string]interface{}{
		"worker_id": id,
	})

	for job := range p.jobQueue {
		result := p.process(job, id)
		if p.onResult != nil {
			p.onResult(result)
		}
	}

	p.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}

func (p *Pool) process(job Job, workerID int) (result Result) {
	start := time.Now()
	result.Job = job

	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorWithFields("Worker recovered from panic", map[string]interface{}{
				"worker_id":  workerID,
				"comment_id": job.Comment.ID,
				"panic":      r,
			})
			result.Err = errors.New("handler panicked")
			p.failed.Add(1)
		}
		result.Duration = time.Since(start)
	}()

	if err := p.handler(p.ctx, job); err != nil {
		result.Err = err
		p.failed.Add(1)
		p.logger.ErrorWithFields("Worker failed to process comment", map[string]interface{}{
			"worker_id":  workerID,
			"comment_id": job.Comment.ID,
			"error":      err.Error(),
		})
		return result
	}

	p.completed.Add(1)
	p.logger.DebugWithFields("Worker completed job", map[string]interface{}{
		"worker_id":  workerID,
		"comment_id": job.Comment.ID,
		"duration":   time.Since(start),
	})
	return result
}
