// Package queue implements the EmbeddingQueue (C5): a bounded-concurrency,
// in-process worker pool that drives EmbeddingEngine -> EmbeddingStore
// writes asynchronously so the store_memory write path returns quickly.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/memnexus/memcore/internal/memerr"
	"github.com/memnexus/memcore/pkg/observability"
)

// Status is a job's place in its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Job is the in-memory representation of a queued embedding computation
// (spec.md §3's EmbeddingJob).
type Job struct {
	ID           string
	MemoryID     string
	Content      string
	Sector       string
	UserID       string
	Attempt      int
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ErrorMessage string
}

// Generator performs the full generate-and-persist cycle for one job. The
// queue only inspects its success/failure, not its return value.
type Generator func(ctx context.Context, memoryID, content, sector string) error

// CompletionCallback is invoked exactly once per job when it reaches a
// terminal status.
type CompletionCallback func(memoryID, userID string, success bool, err error)

// Config holds the queue's tunables (spec.md §4.4).
type Config struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxConcurrent int
	JobTimeout    time.Duration
	Logger        observability.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 5
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = observability.NewNoopLogger()
	}
}

// Queue implements the EmbeddingQueue contract. All state is in-process;
// there is no external broker, matching spec.md §4.4's cache-like
// clear-on-cancel semantics.
type Queue struct {
	cfg Config

	mu        sync.Mutex
	jobs      map[string]*Job
	byMemory  map[string]string // memory_id -> job_id, latest wins
	pending   []string          // FIFO of job ids awaiting a worker
	processing int

	generator  Generator
	onComplete CompletionCallback

	running bool
	done    chan struct{}

	seq int64 // monotonic counter for job id generation
}

// New constructs a Queue with the given configuration.
func New(cfg Config) *Queue {
	cfg.applyDefaults()
	return &Queue{
		cfg:      cfg,
		jobs:     make(map[string]*Job),
		byMemory: make(map[string]string),
	}
}

// SetGenerator registers the function executed per job.
func (q *Queue) SetGenerator(fn Generator) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.generator = fn
}

// SetOnComplete registers the terminal callback.
func (q *Queue) SetOnComplete(cb CompletionCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onComplete = cb
}

// Enqueue admits a new job in state pending, wakes the scheduler if it is
// not already running, and returns immediately with the job id.
func (q *Queue) Enqueue(memoryID, content, sector, userID string) string {
	q.mu.Lock()
	q.seq++
	id := fmt.Sprintf("emb-%s-%d", memoryID, time.Now().UnixNano()+q.seq)
	now := time.Now()
	job := &Job{
		ID:        id,
		MemoryID:  memoryID,
		Content:   content,
		Sector:    sector,
		UserID:    userID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.jobs[id] = job
	q.byMemory[memoryID] = id
	q.pending = append(q.pending, id)

	startScheduler := !q.running
	if startScheduler {
		q.running = true
		q.done = make(chan struct{})
	}
	q.mu.Unlock()

	if startScheduler {
		go q.runScheduler()
	}
	return id
}

// Status returns a copy of the job's current state, or nil if unknown.
func (q *Queue) Status(jobID string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

// StatusByMemoryID returns the most recently enqueued job for memoryID.
func (q *Queue) StatusByMemoryID(memoryID string) *Job {
	q.mu.Lock()
	id, ok := q.byMemory[memoryID]
	q.mu.Unlock()
	if !ok {
		return nil
	}
	return q.Status(id)
}

// Stats reports job counts by status.
type Stats struct {
	Pending    int
	Processing int
	Complete   int
	Failed     int
	Total      int
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := Stats{Total: len(q.jobs)}
	for _, j := range q.jobs {
		switch j.Status {
		case StatusPending:
			stats.Pending++
		case StatusProcessing:
			stats.Processing++
		case StatusComplete:
			stats.Complete++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) ProcessingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

func (q *Queue) IsProcessing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// ClearFinished removes every job in a terminal state and returns the
// count removed.
func (q *Queue) ClearFinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, j := range q.jobs {
		if j.Status == StatusComplete || j.Status == StatusFailed {
			delete(q.jobs, id)
			if q.byMemory[j.MemoryID] == id {
				delete(q.byMemory, j.MemoryID)
			}
			n++
		}
	}
	return n
}

// Clear drops all pending entries and clears the job table. In-flight
// workers run to completion but their terminal state is lost — there is
// no per-job cancellation (spec.md §4.4).
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.jobs = make(map[string]*Job)
	q.byMemory = make(map[string]string)
}

// WaitForCompletion blocks until the scheduler drains (pending == 0 &&
// processing == 0), or ctx is cancelled.
func (q *Queue) WaitForCompletion(ctx context.Context) error {
	q.mu.Lock()
	done := q.done
	running := q.running
	q.mu.Unlock()

	if !running {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runScheduler is the single active scheduling context: while pending>0 or
// processing>0, it dispatches jobs up to MaxConcurrent and dispatches each
// process_one to run without blocking itself (spec.md §4.4).
func (q *Queue) runScheduler() {
	for {
		q.mu.Lock()
		for len(q.pending) > 0 && q.processing < q.cfg.MaxConcurrent {
			id := q.pending[0]
			q.pending = q.pending[1:]
			job := q.jobs[id]
			if job == nil {
				continue
			}
			job.Status = StatusProcessing
			job.Attempt++
			job.UpdatedAt = time.Now()
			q.processing++
			go q.processOne(job)
		}
		pending, processing := len(q.pending), q.processing
		q.mu.Unlock()

		if pending == 0 && processing == 0 {
			q.mu.Lock()
			// Re-check under lock: a processOne goroutine may have
			// re-admitted a retry between the unlock above and here.
			if len(q.pending) == 0 && q.processing == 0 {
				q.running = false
				close(q.done)
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			continue
		}

		time.Sleep(100 * time.Millisecond)
	}
}

// processOne runs one attempt of job, per spec.md §4.4's numbered steps.
func (q *Queue) processOne(job *Job) {
	q.mu.Lock()
	generator := q.generator
	q.mu.Unlock()

	if generator == nil {
		q.finishAttempt(job, fmt.Errorf("No embedding generator configured"))
		return
	}

	err := q.runWithTimeout(generator, job)
	q.finishAttempt(job, err)
}

// runWithTimeout races generator against JobTimeout. On timeout it returns
// immediately with a timeout error; the generator goroutine is not
// cancelled and its eventual result is discarded.
func (q *Queue) runWithTimeout(generator Generator, job *Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.JobTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- generator(ctx, job.MemoryID, job.Content, job.Sector)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return memerr.Timeout(fmt.Sprintf("operation timed out after %dms", q.cfg.JobTimeout.Milliseconds()))
	}
}

func (q *Queue) finishAttempt(job *Job, err error) {
	if err == nil {
		q.mu.Lock()
		job.Status = StatusComplete
		job.UpdatedAt = time.Now()
		q.processing--
		cb := q.onComplete
		q.mu.Unlock()
		if cb != nil {
			cb(job.MemoryID, job.UserID, true, nil)
		}
		return
	}

	q.mu.Lock()
	job.ErrorMessage = err.Error()
	attempt := job.Attempt
	maxRetries := q.cfg.MaxRetries
	baseDelay := q.cfg.BaseDelay

	// A classified memerr.Error that memerr.Retryable rejects (validation,
	// dimension mismatch, corrupt embedding, not found) is permanent and
	// skips straight to failed regardless of attempt count (spec.md §7:
	// "ValidationError ... Never retried"). An unclassified error retries
	// on the ordinary schedule.
	var classified *memerr.Error
	permanent := errors.As(err, &classified) && !memerr.Retryable(err)

	if attempt < maxRetries && !permanent {
		// The job stays counted as "processing" through the backoff sleep
		// so the scheduler never mistakes an in-flight retry for a drained
		// queue and tears itself down before the retry is re-admitted.
		q.mu.Unlock()
		backoff := baseDelay * time.Duration(1<<uint(attempt-1))
		time.Sleep(backoff)

		q.mu.Lock()
		job.Status = StatusPending
		job.UpdatedAt = time.Now()
		q.pending = append(q.pending, job.ID)
		q.processing--
		q.mu.Unlock()
		return
	}

	q.processing--
	job.Status = StatusFailed
	job.UpdatedAt = time.Now()
	cb := q.onComplete
	q.mu.Unlock()
	if cb != nil {
		cb(job.MemoryID, job.UserID, false, err)
	}
}
