// Package compactor implements the background reconciliation pass over
// the record store's index, shards, and WAL, and the recovery policy for
// records abandoned mid-upload.
package compactor

import (
	"context"
	"time"

	"github.com/marmos91/docstore/internal/logger"
	"github.com/marmos91/docstore/pkg/metrics"
	"github.com/marmos91/docstore/pkg/objectstore"
	"github.com/marmos91/docstore/pkg/record"
)

// DefaultInterval is the default mutation count between compaction passes.
const DefaultInterval = 10_000

// Store is the subset of *recordstore.Store the compactor needs, kept
// narrow so tests can substitute a fake.
type Store interface {
	AllIDs() []string
	Get(id string) (*record.Record, error)
	Delete(id string) error
	Update(id string, patch record.Patch) error
}

// ShardWalker lists every shard file's id, so orphaned files (referenced
// by no index entry) can be removed.
type ShardWalker interface {
	ShardIDs() ([]string, error)
	Delete(id string) error
}

// Compactor runs the reconciliation pass each time Run is called. Nothing
// in this repository calls Run on a mutation-count schedule.
type Compactor struct {
	store   Store
	shards  ShardWalker
	objects objectstore.Store
	m       *metrics.Compaction
}

// New returns a Compactor over store/shards, publishing counts-only
// metrics. Run also logs a warning per healed index entry and an info
// summary per pass.
func New(store Store, shards ShardWalker, objects objectstore.Store, m *metrics.Compaction) *Compactor {
	return &Compactor{store: store, shards: shards, objects: objects, m: m}
}

// Result summarizes one compaction pass.
type Result struct {
	OrphanShardsRemoved int
	UploadingReconciled int
	UploadingFailed     int
	IndexEntriesHealed  int
	Duration            time.Duration
}

// Run performs one pass: self-heal index entries whose shard file is
// missing or corrupt, reconcile abandoned "uploading" records, then
// remove shard files that reference no live index entry.
func (c *Compactor) Run() Result {
	start := time.Now()
	var res Result

	ids := c.store.AllIDs()
	for _, id := range ids {
		r, err := c.store.Get(id)
		if err != nil {
			// The index entry points at a shard file that is missing or
			// fails its self-check. Remove the dangling entry: Delete
			// appends the DEL WAL entry before mutating the index, the
			// same sequence every other mutation uses.
			if delErr := c.store.Delete(id); delErr == nil {
				res.IndexEntriesHealed++
				logger.Warn("healed dangling index entry", logger.RecordID(id), logger.Err(err))
			}
			continue
		}
		if r.Status != record.StatusUploading {
			continue
		}
		if c.objects != nil {
			if ok, _ := c.objects.Exists(context.Background(), r.PayloadRef); ok {
				ready := record.StatusReady
				_ = c.store.Update(id, record.Patch{Status: &ready})
				res.UploadingReconciled++
				continue
			}
		}
		failed := record.StatusFailed
		_ = c.store.Update(id, record.Patch{Status: &failed})
		res.UploadingFailed++
	}

	if shardIDs, err := c.shards.ShardIDs(); err == nil {
		live := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			live[id] = struct{}{}
		}
		for _, id := range shardIDs {
			if _, ok := live[id]; !ok {
				if err := c.shards.Delete(id); err == nil {
					res.OrphanShardsRemoved++
				}
			}
		}
	}

	res.Duration = time.Since(start)
	logger.Info("compaction pass complete",
		logger.Operation("compact"),
		logger.DurationMs(float64(res.Duration.Microseconds())/1000.0))
	if c.m != nil {
		c.m.Observe(res.OrphanShardsRemoved, res.UploadingReconciled, res.UploadingFailed, res.IndexEntriesHealed, res.Duration)
	}
	return res
}
