// Package workerpool implements the dynamically sized set of workers that
// drain the ingestion queue: a Start/Stop lifecycle with a monitor
// goroutine and non-blocking enqueue, generalized with adaptive scaling
// and per-task retry with exponential backoff.
package workerpool

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/marmos91/docstore/internal/logger"
	"github.com/marmos91/docstore/pkg/ingestqueue"
	"github.com/marmos91/docstore/pkg/metrics"
	"github.com/marmos91/docstore/pkg/storeerr"
)

// DefaultMinWorkers and DefaultMaxWorkers are the pool's default clamp bounds.
const (
	DefaultMinWorkers = 5
	DefaultMaxWorkers = 1000
)

// DefaultRetryDelays is the default exponential backoff sequence.
var DefaultRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}

// DefaultScaleInterval is the minimum period between resize decisions.
const DefaultScaleInterval = 1 * time.Second

// DefaultIdleRecheckInterval bounds how long an idle worker blocks in
// Dequeue before waking up to recheck whether the pool has shrunk out
// from under it.
const DefaultIdleRecheckInterval = 200 * time.Millisecond

// Processor executes one upload task to completion, returning the
// resulting record id on success and whether it resolved via dedup.
// Callers classify the returned error with storeerr.Retryable to decide
// whether the pool should retry it.
type Processor func(ctx context.Context, t *ingestqueue.UploadTask) (resultID string, duplicate bool, err error)

// Config configures a Pool.
type Config struct {
	MinWorkers          int
	MaxWorkers          int
	ScaleInterval       time.Duration
	RetryDelays         []time.Duration
	IdleRecheckInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.MinWorkers <= 0 {
		c.MinWorkers = DefaultMinWorkers
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.ScaleInterval <= 0 {
		c.ScaleInterval = DefaultScaleInterval
	}
	if len(c.RetryDelays) == 0 {
		c.RetryDelays = DefaultRetryDelays
	}
	if c.IdleRecheckInterval <= 0 {
		c.IdleRecheckInterval = DefaultIdleRecheckInterval
	}
}

// Pool is a resizable set of workers consuming an ingestqueue.Queue.
type Pool struct {
	cfg   Config
	queue *ingestqueue.Queue
	proc  Processor
	m     *metrics.Pool

	mu      sync.Mutex
	target  int
	active  int
	stopCh  chan struct{}
	doneWg  sync.WaitGroup
	started bool
}

// New returns a Pool bound to queue, executing tasks via proc and
// publishing its active worker count through m (nil-safe, pass nil to
// disable).
func New(queue *ingestqueue.Queue, proc Processor, cfg Config, m *metrics.Pool) *Pool {
	cfg.setDefaults()
	return &Pool{cfg: cfg, queue: queue, proc: proc, m: m, stopCh: make(chan struct{})}
}

// Start launches W_min workers and a scaling-tick goroutine. It returns
// immediately; call Stop for graceful shutdown.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.target = p.cfg.MinWorkers
	for i := 0; i < p.target; i++ {
		p.spawnWorkerLocked(ctx)
	}
	active := p.active
	p.mu.Unlock()

	logger.InfoCtx(ctx, "worker pool started", logger.WorkerCount(active))
	p.m.SetActiveWorkers(active)

	p.doneWg.Add(1)
	go p.scaleLoop(ctx)
}

func (p *Pool) spawnWorkerLocked(ctx context.Context) {
	p.active++
	p.doneWg.Add(1)
	go p.worker(ctx)
}

// scaleLoop resizes the pool every ScaleInterval based on pending queue
// depth.
func (p *Pool) scaleLoop(ctx context.Context) {
	defer p.doneWg.Done()
	ticker := time.NewTicker(p.cfg.ScaleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.resize(ctx)
		}
	}
}

// TargetWorkers computes the worker-count scaling formula for pending depth q.
func TargetWorkers(q int64, minWorkers, maxWorkers int) int {
	var target int
	switch {
	case q < 100:
		target = minWorkers + int(q/20)
	case q < 10000:
		target = minWorkers + int(math.Ceil(10*math.Log10(float64(q))))
	default:
		target = minWorkers + int(math.Ceil(15*math.Log10(float64(q))))
	}
	if target < minWorkers {
		target = minWorkers
	}
	if target > maxWorkers {
		target = maxWorkers
	}
	return target
}

func (p *Pool) resize(ctx context.Context) {
	q := p.queue.Pending()
	newTarget := TargetWorkers(q, p.cfg.MinWorkers, p.cfg.MaxWorkers)

	p.mu.Lock()
	p.target = newTarget
	for p.active < p.target {
		p.spawnWorkerLocked(ctx)
	}
	active := p.active
	p.mu.Unlock()
	// Shrinking is cooperative: idle workers observe target < active and
	// exit on their own (see worker below); we never force-kill a worker
	// mid-task.

	logger.DebugCtx(ctx, "worker pool resized", logger.QueueDepth(q), logger.WorkerCount(newTarget))
	p.m.SetActiveWorkers(active)
}

// worker repeatedly dequeues and processes tasks until told to stop or it
// is redundant relative to the current target. Dequeue wakes on its own
// at IdleRecheckInterval even with nothing queued, so a worker idled out
// by a shrinking target notices and retires instead of parking forever.
func (p *Pool) worker(ctx context.Context) {
	defer p.doneWg.Done()
	defer func() {
		p.mu.Lock()
		p.active--
		active := p.active
		p.mu.Unlock()
		p.m.SetActiveWorkers(active)
	}()

	for {
		if p.shouldRetire() {
			return
		}
		t, ok := p.queue.Dequeue(p.stopCh, p.cfg.IdleRecheckInterval)
		if !ok {
			select {
			case <-p.stopCh:
				return
			default:
				// Dequeue returned on its idle-recheck timeout, not a real
				// stop: loop back around to reconsider shouldRetire.
				continue
			}
		}
		p.runTask(ctx, t)
	}
}

func (p *Pool) shouldRetire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active > p.target
}

func (p *Pool) runTask(ctx context.Context, t *ingestqueue.UploadTask) {
	t.Attempt++
	resultID, duplicate, err := p.proc(ctx, t)
	if err == nil {
		status := ingestqueue.StatusSucceeded
		if duplicate {
			status = ingestqueue.StatusDuplicate
		}
		p.queue.Complete(t, status, resultID, nil)
		return
	}
	if !storeerr.Retryable(err) {
		logger.WarnCtx(ctx, "upload task failed terminally", logger.TaskID(t.ID), logger.Attempt(t.Attempt), logger.Err(err))
		p.queue.Complete(t, ingestqueue.StatusFailed, "", err)
		return
	}
	if t.Attempt > len(p.cfg.RetryDelays) {
		logger.WarnCtx(ctx, "upload task exhausted retries", logger.TaskID(t.ID), logger.Attempt(t.Attempt), logger.Err(err))
		p.queue.Complete(t, ingestqueue.StatusFailed, "", err)
		return
	}
	delay := p.cfg.RetryDelays[t.Attempt-1]
	t.NextEligible = time.Now().Add(delay)
	t.LastErr = err
	logger.DebugCtx(ctx, "upload task scheduled for retry", logger.TaskID(t.ID), logger.Attempt(t.Attempt), logger.Err(err))

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		p.queue.Complete(t, ingestqueue.StatusFailed, "", storeerr.ErrCancelled)
		return
	case <-p.stopCh:
		// Leave it processing: it will be recovered on next startup per
		// the worker pool's cancellation contract.
		return
	}
	p.queue.Requeue(t)
}

// Stop signals all workers to stop pulling new tasks, waits up to
// gracePeriod for in-flight tasks to finish, then returns. Tasks still
// processing past the deadline are abandoned in their persisted
// "processing" state for later recovery.
func (p *Pool) Stop(gracePeriod time.Duration) {
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.doneWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker pool stopped")
	case <-time.After(gracePeriod):
		logger.Warn("worker pool stop grace period elapsed with workers still draining")
	}
}

// ActiveWorkers reports the current number of running workers.
func (p *Pool) ActiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
