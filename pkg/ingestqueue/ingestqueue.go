// Package ingestqueue implements the bounded FIFO of upload tasks the
// worker pool drains: a channel-backed bounded buffer with non-blocking
// enqueue, aggregate stats, and per-task retry/backoff bookkeeping.
package ingestqueue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/docstore/pkg/metrics"
	"github.com/marmos91/docstore/pkg/storeerr"
)

// Status is the lifecycle state of an UploadTask.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusDuplicate  Status = "duplicate"
	StatusRetrying   Status = "retrying"
)

// Payload is the streamable content a task carries, kept as a thin
// interface so callers can hand over a file handle, an in-memory buffer,
// or any io.Reader-producing source without the queue caring which.
type Payload interface {
	Open() (PayloadReader, error)
}

// PayloadReader is the minimal read-and-close contract a Payload yields.
type PayloadReader interface {
	Read(p []byte) (int, error)
	Close() error
}

// UploadTask is one pending unit of ingestion work.
type UploadTask struct {
	ID               string
	Filename         string
	Folder           string
	DeclaredChecksum string
	Payload          Payload

	Attempt      int
	NextEligible time.Time
	Status       Status

	// ResultID is the record id produced by a successful or duplicate
	// outcome, set once the task reaches a terminal status.
	ResultID string
	// LastErr records the most recent failure, if any.
	LastErr error
}

// Stats is a snapshot of aggregate queue counters.
type Stats struct {
	Pending    int64
	Processing int64
	Succeeded  int64
	Failed     int64
	Duplicate  int64
	Retries    int64
}

// Queue is a bounded FIFO of *UploadTask with a high-water mark.
type Queue struct {
	ch chan *UploadTask
	m  *metrics.Queue

	mu     sync.RWMutex
	status map[string]*UploadTask

	pending    atomic.Int64
	processing atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	duplicate  atomic.Int64
	retries    atomic.Int64
}

// New returns a Queue with the given high-water mark capacity, publishing
// counts-only metrics through m (nil-safe, pass nil to disable).
func New(highWaterMark int, m *metrics.Queue) *Queue {
	if highWaterMark <= 0 {
		highWaterMark = 1
	}
	return &Queue{
		ch:     make(chan *UploadTask, highWaterMark),
		status: make(map[string]*UploadTask),
		m:      m,
	}
}

// sample reports the current pending/processing gauges to the metrics
// collector. Called after every mutation of those counters.
func (q *Queue) sample() {
	q.m.Sample(q.pending.Load(), q.processing.Load())
}

// Submit enqueues tasks, assigning fresh ids and pending status to any
// that lack one. It never blocks indefinitely: the first task that would
// exceed the high-water mark fails the whole call with QueueFull.
func (q *Queue) Submit(tasks []*UploadTask) (map[string]*UploadTask, error) {
	handles := make(map[string]*UploadTask, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.Status = StatusPending

		q.mu.Lock()
		q.status[t.ID] = t
		q.mu.Unlock()

		select {
		case q.ch <- t:
			q.pending.Add(1)
			handles[t.ID] = t
		default:
			q.mu.Lock()
			delete(q.status, t.ID)
			q.mu.Unlock()
			return handles, storeerr.Wrap("ingestqueue.submit", t.ID, storeerr.ErrQueueFull)
		}
	}
	q.sample()
	return handles, nil
}

// Dequeue blocks (respecting stopCh) until a task is available or timeout
// elapses. A non-positive timeout blocks indefinitely. A timeout fire
// returns (nil, false) just like a stop signal, letting idle workers wake
// up periodically to recheck whether the pool has shrunk out from under
// them instead of parking forever.
func (q *Queue) Dequeue(stopCh <-chan struct{}, timeout time.Duration) (*UploadTask, bool) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case t, ok := <-q.ch:
		if !ok {
			return nil, false
		}
		q.pending.Add(-1)
		q.processing.Add(1)
		q.setStatus(t.ID, StatusProcessing)
		q.sample()
		return t, true
	case <-stopCh:
		return nil, false
	case <-timeoutCh:
		return nil, false
	}
}

// Requeue puts t back on the channel for a retry attempt at a later time,
// non-blocking; if the channel is full the task is dropped to failed (the
// queue was sized to absorb its own in-flight population, so this should
// not happen in practice).
func (q *Queue) Requeue(t *UploadTask) {
	q.processing.Add(-1)
	q.retries.Add(1)
	q.m.AddRetries(1)
	q.setStatus(t.ID, StatusRetrying)
	select {
	case q.ch <- t:
		q.pending.Add(1)
		q.sample()
	default:
		q.Complete(t, StatusFailed, "", storeerr.ErrQueueFull)
	}
}

// Complete records a terminal (or duplicate) outcome for t.
func (q *Queue) Complete(t *UploadTask, status Status, resultID string, err error) {
	switch status {
	case StatusSucceeded:
		q.succeeded.Add(1)
		q.m.AddSucceeded(1)
	case StatusFailed:
		q.failed.Add(1)
		q.m.AddFailed(1)
	case StatusDuplicate:
		q.duplicate.Add(1)
		q.m.AddDuplicate(1)
	}
	if t.Status == StatusProcessing {
		q.processing.Add(-1)
	}
	t.Status = status
	t.ResultID = resultID
	t.LastErr = err
	q.setStatus(t.ID, status)
	q.sample()
}

func (q *Queue) setStatus(id string, status Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.status[id]; ok {
		t.Status = status
	}
}

// Status returns the current status of task id.
func (q *Queue) Status(id string) (*UploadTask, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.status[id]
	return t, ok
}

// Stats returns a snapshot of aggregate counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:    q.pending.Load(),
		Processing: q.processing.Load(),
		Succeeded:  q.succeeded.Load(),
		Failed:     q.failed.Load(),
		Duplicate:  q.duplicate.Load(),
		Retries:    q.retries.Load(),
	}
}

// Pending reports the number of tasks waiting to be dequeued.
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

// Close closes the underlying channel, signalling no more tasks will be
// submitted. Workers drain whatever remains before observing closed.
func (q *Queue) Close() {
	close(q.ch)
}
