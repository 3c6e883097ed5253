// Package recindex implements the Global Index: an in-memory map from
// record id to shard coordinates and denormalized attributes, persisted
// atomically to disk, with derived secondary lookup maps.
package recindex

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/marmos91/docstore/pkg/record"
	"github.com/marmos91/docstore/pkg/storeerr"
)

// Entry is the denormalized, persisted view of a record held by the index.
type Entry struct {
	Shard     int64     `json:"shard"`
	Filename  string    `json:"filename"`
	Folder    string    `json:"folder"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// onDiskIndex is the serialized form written to index.v1.
type onDiskIndex struct {
	LastIDOrd int64            `json:"last_id_ord"`
	Entries   map[string]Entry `json:"entries"`
	// InsertOrder preserves the order ids were first added, so by_folder
	// can return ids in insertion-preserving order as required.
	InsertOrder []string `json:"insert_order"`
}

// Index is the in-memory Global Index, guarded by its own mutex (disjoint
// from the store's advisory file lock, which the record store holds from
// Open until Close).
type Index struct {
	mu   sync.RWMutex
	path string

	lastIDOrd int64
	byID      map[string]Entry
	order     []string // insertion order, parallel source of truth for by_folder

	byFolder   map[string][]string // folder -> ids, insertion-preserving
	byChecksum map[string]string   // checksum -> id

	mutationsSinceRewrite int
}

// Open loads the index from path if present, or starts empty.
func Open(path string) (*Index, error) {
	idx := &Index{
		path:       path,
		byID:       make(map[string]Entry),
		byFolder:   make(map[string][]string),
		byChecksum: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, storeerr.Wrap("recindex.open", path, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	var disk onDiskIndex
	if err := json.Unmarshal(data, &disk); err != nil {
		return nil, storeerr.Wrap("recindex.open", path, fmt.Errorf("%w: %v", storeerr.ErrCorrupt, err))
	}
	idx.lastIDOrd = disk.LastIDOrd
	if disk.Entries != nil {
		idx.byID = disk.Entries
	}
	idx.order = disk.InsertOrder
	idx.rebuildSecondary()
	return idx, nil
}

func (idx *Index) rebuildSecondary() {
	idx.byFolder = make(map[string][]string)
	idx.byChecksum = make(map[string]string)
	for _, id := range idx.order {
		e, ok := idx.byID[id]
		if !ok {
			continue
		}
		idx.byFolder[e.Folder] = append(idx.byFolder[e.Folder], id)
		if e.Checksum != "" {
			idx.byChecksum[e.Checksum] = id
		}
	}
}

// Put inserts or replaces the entry for id. Callers hold the global lock
// for the WAL-append-then-index-mutate sequence; Put itself only updates
// the in-memory structures.
func (idx *Index) Put(id string, e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, existed := idx.byID[id]; existed {
		idx.removeFromFolder(old.Folder, id)
		if old.Checksum != "" && idx.byChecksum[old.Checksum] == id {
			delete(idx.byChecksum, old.Checksum)
		}
	} else {
		idx.order = append(idx.order, id)
	}
	idx.byID[id] = e
	idx.byFolder[e.Folder] = append(idx.byFolder[e.Folder], id)
	if e.Checksum != "" {
		idx.byChecksum[e.Checksum] = id
	}
	idx.mutationsSinceRewrite++
}

func (idx *Index) removeFromFolder(folder, id string) {
	ids := idx.byFolder[folder]
	for i, existing := range ids {
		if existing == id {
			idx.byFolder[folder] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// Remove deletes id from the index and all secondary maps. It does not
// remove id from the insertion-order slice immediately (O(1) tombstone);
// the next Rewrite drops tombstoned ids from the order slice.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e, ok := idx.byID[id]
	if !ok {
		return
	}
	idx.removeFromFolder(e.Folder, id)
	if e.Checksum != "" && idx.byChecksum[e.Checksum] == id {
		delete(idx.byChecksum, e.Checksum)
	}
	delete(idx.byID, id)
	idx.mutationsSinceRewrite++
}

// Lookup returns the entry for id.
func (idx *Index) Lookup(id string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.byID[id]
	return e, ok
}

// ByFolder returns ids whose stored folder equals or is a descendant of
// path, in insertion-preserving order.
func (idx *Index) ByFolder(path string, recursive bool) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	path = record.NormalizeFolder(path)
	if !recursive {
		ids := idx.byFolder[path]
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if _, ok := idx.byID[id]; ok {
				out = append(out, id)
			}
		}
		return out
	}

	var out []string
	for _, id := range idx.order {
		e, ok := idx.byID[id]
		if !ok {
			continue
		}
		if record.FolderContains(path, e.Folder) {
			out = append(out, id)
		}
	}
	return out
}

// ByChecksum returns the id stored under hash, if any.
func (idx *Index) ByChecksum(hash string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.byChecksum[hash]
	return id, ok
}

// NextIDOrd atomically allocates and returns the next monotonic ordinal,
// used to mint fresh record ids.
func (idx *Index) NextIDOrd() int64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.lastIDOrd++
	return idx.lastIDOrd
}

// MutationsSinceRewrite reports how many Put/Remove calls have happened
// since the last successful Rewrite, for the index_rewrite_interval policy.
func (idx *Index) MutationsSinceRewrite() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.mutationsSinceRewrite
}

// Rewrite atomically persists the full index to disk (temp file + rename)
// and resets the mutation counter.
func (idx *Index) Rewrite() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.rewriteLocked()
}

func (idx *Index) rewriteLocked() error {
	// Drop tombstoned ids (present in order but absent from byID) so the
	// persisted insertion order stays dense.
	dense := idx.order[:0:0]
	for _, id := range idx.order {
		if _, ok := idx.byID[id]; ok {
			dense = append(dense, id)
		}
	}
	idx.order = dense

	disk := onDiskIndex{
		LastIDOrd:   idx.lastIDOrd,
		Entries:     idx.byID,
		InsertOrder: idx.order,
	}
	data, err := json.Marshal(disk)
	if err != nil {
		return storeerr.Wrap("recindex.rewrite", idx.path, fmt.Errorf("%w: %v", storeerr.ErrCorrupt, err))
	}

	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return storeerr.Wrap("recindex.rewrite", idx.path, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if f, err := os.OpenFile(tmp, os.O_WRONLY, 0644); err == nil {
		_ = f.Sync()
		f.Close()
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		os.Remove(tmp)
		return storeerr.Wrap("recindex.rewrite", idx.path, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	idx.mutationsSinceRewrite = 0
	return nil
}

// AllIDs returns every live id, in insertion order. Used by the compactor
// and the similarity ranker.
func (idx *Index) AllIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.byID))
	for _, id := range idx.order {
		if _, ok := idx.byID[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
