// Package metrics provides Prometheus collectors for the compactor,
// ingestion queue, and worker pool, using a promauto-built,
// nil-receiver-safe wrapper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry wraps a prometheus.Registerer with an enabled flag, so callers
// that don't want metrics can pass a nil *Registry and every collector
// method below becomes a safe no-op.
type Registry struct {
	reg     prometheus.Registerer
	enabled bool
}

// NewRegistry wraps reg (or the default global registry if reg is nil).
func NewRegistry(reg prometheus.Registerer, enabled bool) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Registry{reg: reg, enabled: enabled}
}

// IsEnabled reports whether metrics collection is turned on.
func (r *Registry) IsEnabled() bool {
	return r != nil && r.enabled
}

// Compaction holds the counters/gauges the compactor emits: counts only,
// no log-level narration.
type Compaction struct {
	orphansRemoved     prometheus.Counter
	uploadingRecovered prometheus.Counter
	uploadingFailed    prometheus.Counter
	indexEntriesHealed prometheus.Counter
	duration           prometheus.Histogram
}

// NewCompaction builds a Compaction collector set, or a nil-safe disabled
// one if reg is not enabled.
func NewCompaction(reg *Registry) *Compaction {
	if !reg.IsEnabled() {
		return nil
	}
	f := promauto.With(reg.reg)
	return &Compaction{
		orphansRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "docstore_compaction_orphan_shards_removed_total",
			Help: "Shard files removed because they referenced no live index entry.",
		}),
		uploadingRecovered: f.NewCounter(prometheus.CounterOpts{
			Name: "docstore_compaction_uploading_recovered_total",
			Help: "Records in uploading status promoted to ready during compaction.",
		}),
		uploadingFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "docstore_compaction_uploading_failed_total",
			Help: "Records in uploading status demoted to failed during compaction.",
		}),
		indexEntriesHealed: f.NewCounter(prometheus.CounterOpts{
			Name: "docstore_compaction_index_entries_healed_total",
			Help: "Index entries removed because their referenced shard file was missing or corrupt.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name: "docstore_compaction_duration_seconds",
			Help: "Duration of each compaction pass.",
		}),
	}
}

// Observe records the outcome of one compaction pass.
func (c *Compaction) Observe(orphans, recovered, failed, healed int, d time.Duration) {
	if c == nil {
		return
	}
	c.orphansRemoved.Add(float64(orphans))
	c.uploadingRecovered.Add(float64(recovered))
	c.uploadingFailed.Add(float64(failed))
	c.indexEntriesHealed.Add(float64(healed))
	c.duration.Observe(d.Seconds())
}

// Queue holds the gauges the ingestion queue exposes.
type Queue struct {
	pending    prometheus.Gauge
	processing prometheus.Gauge
	succeeded  prometheus.Counter
	failed     prometheus.Counter
	duplicate  prometheus.Counter
	retries    prometheus.Counter
}

// NewQueue builds a Queue collector set, or nil if reg is disabled.
func NewQueue(reg *Registry) *Queue {
	if !reg.IsEnabled() {
		return nil
	}
	f := promauto.With(reg.reg)
	return &Queue{
		pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "docstore_ingest_queue_pending",
			Help: "Upload tasks waiting to be dequeued.",
		}),
		processing: f.NewGauge(prometheus.GaugeOpts{
			Name: "docstore_ingest_queue_processing",
			Help: "Upload tasks currently being processed.",
		}),
		succeeded: f.NewCounter(prometheus.CounterOpts{
			Name: "docstore_ingest_tasks_succeeded_total",
			Help: "Upload tasks that completed successfully.",
		}),
		failed: f.NewCounter(prometheus.CounterOpts{
			Name: "docstore_ingest_tasks_failed_total",
			Help: "Upload tasks that exhausted retries or failed fatally.",
		}),
		duplicate: f.NewCounter(prometheus.CounterOpts{
			Name: "docstore_ingest_tasks_duplicate_total",
			Help: "Upload tasks resolved as duplicates of an existing record.",
		}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: "docstore_ingest_tasks_retried_total",
			Help: "Upload task retry attempts.",
		}),
	}
}

// Sample updates the pending and processing gauges from a queue stats
// snapshot. The monotonic counters are not touched here; they are bumped
// through AddSucceeded, AddFailed, AddDuplicate and AddRetries.
func (q *Queue) Sample(pending, processing int64) {
	if q == nil {
		return
	}
	q.pending.Set(float64(pending))
	q.processing.Set(float64(processing))
}

// AddSucceeded, AddFailed, AddDuplicate, AddRetries bump the respective
// counters by delta.
func (q *Queue) AddSucceeded(delta int64) {
	if q != nil {
		q.succeeded.Add(float64(delta))
	}
}

func (q *Queue) AddFailed(delta int64) {
	if q != nil {
		q.failed.Add(float64(delta))
	}
}

func (q *Queue) AddDuplicate(delta int64) {
	if q != nil {
		q.duplicate.Add(float64(delta))
	}
}

func (q *Queue) AddRetries(delta int64) {
	if q != nil {
		q.retries.Add(float64(delta))
	}
}

// Pool holds the gauge the worker pool exposes.
type Pool struct {
	activeWorkers prometheus.Gauge
}

// NewPool builds a Pool collector set, or nil if reg is disabled.
func NewPool(reg *Registry) *Pool {
	if !reg.IsEnabled() {
		return nil
	}
	f := promauto.With(reg.reg)
	return &Pool{
		activeWorkers: f.NewGauge(prometheus.GaugeOpts{
			Name: "docstore_worker_pool_active_workers",
			Help: "Current number of running workers.",
		}),
	}
}

// SetActiveWorkers records the pool's current worker count.
func (p *Pool) SetActiveWorkers(n int) {
	if p == nil {
		return
	}
	p.activeWorkers.Set(float64(n))
}
