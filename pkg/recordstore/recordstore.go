// Package recordstore is the public façade over the sharded record store:
// file lock, WAL, shard store, global index, and LRU cache wired together
// behind a CRUD/list/find-by-checksum/folder surface.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/docstore/internal/logger"
	"github.com/marmos91/docstore/pkg/filelock"
	"github.com/marmos91/docstore/pkg/reccache"
	"github.com/marmos91/docstore/pkg/recindex"
	"github.com/marmos91/docstore/pkg/record"
	"github.com/marmos91/docstore/pkg/shardstore"
	"github.com/marmos91/docstore/pkg/storeerr"
	"github.com/marmos91/docstore/pkg/wal"
)

// Config configures a Store's on-disk layout and durability knobs.
type Config struct {
	Root                  string
	ShardWidth            int64
	IndexRewriteInterval  int
	WALFsyncInterval      int
	CacheCapacity         int
	LockTimeout           time.Duration
	EmbeddingDim          int // fixed at first write, 0 means unset
}

func (c *Config) setDefaults() {
	if c.ShardWidth <= 0 {
		c.ShardWidth = 1000
	}
	if c.IndexRewriteInterval <= 0 {
		c.IndexRewriteInterval = 100
	}
	if c.WALFsyncInterval <= 0 {
		c.WALFsyncInterval = 1
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = reccache.DefaultCapacity
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 10 * time.Second
	}
}

// Store is the public record store. The zero value is not usable; build
// one with Open.
type Store struct {
	cfg Config

	lock   *filelock.Lock
	wal    *wal.WAL
	shards *shardstore.Store
	index  *recindex.Index
	cache  *reccache.Cache

	// globalMu serializes the WAL-append-then-index-mutate sequence for
	// every write: it is the single arbiter of index and WAL writes. It
	// is held only for the prepare/append/index-mutate window, never
	// across object-storage I/O (that lives one layer up, in the upload
	// processor).
	globalMu sync.Mutex

	foldersDir string

	embeddingDimMu sync.Mutex
	embeddingDim   int
}

// Open acquires the store's advisory lock, replays the WAL, and returns a
// ready Store. Callers must call Close to release the lock.
func Open(cfg Config) (*Store, error) {
	cfg.setDefaults()

	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, storeerr.Wrap("recordstore.open", cfg.Root, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}

	lockPath := filepath.Join(cfg.Root, "lock")
	lk, err := filelock.Acquire(context.Background(), lockPath, cfg.LockTimeout)
	if err != nil {
		return nil, err
	}

	walDir := filepath.Join(cfg.Root, "wal")
	w, err := wal.Open(walDir, cfg.WALFsyncInterval)
	if err != nil {
		lk.Release()
		return nil, err
	}

	idx, err := recindex.Open(filepath.Join(cfg.Root, "index.v1"))
	if err != nil {
		w.Close()
		lk.Release()
		return nil, err
	}

	shardDir := filepath.Join(cfg.Root, "shards")
	shards := shardstore.New(shardDir, cfg.ShardWidth)

	foldersDir := filepath.Join(cfg.Root, "folders")
	if err := os.MkdirAll(foldersDir, 0755); err != nil {
		w.Close()
		lk.Release()
		return nil, storeerr.Wrap("recordstore.open", foldersDir, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}

	s := &Store{
		cfg:          cfg,
		lock:         lk,
		wal:          w,
		shards:       shards,
		index:        idx,
		cache:        reccache.New(cfg.CacheCapacity),
		foldersDir:   foldersDir,
		embeddingDim: cfg.EmbeddingDim,
	}

	if err := s.recover(); err != nil {
		w.Close()
		lk.Release()
		return nil, err
	}

	logger.Info("record store opened", "root", cfg.Root)
	return s, nil
}

// recover replays the WAL against the index then truncates it.
func (s *Store) recover() error {
	replayed := 0
	err := s.wal.Replay(func(e wal.Entry) error {
		replayed++
		switch e.Op {
		case wal.OpPut:
			if !s.shards.Exists(e.ID) {
				// Create and Update write the shard file before
				// appending PUT, so a PUT with no shard file means the
				// file was removed afterwards; nothing to index.
				return nil
			}
			r, err := s.shards.Read(e.ID)
			if err != nil {
				return err
			}
			s.index.Put(e.ID, recindex.Entry{
				Shard: e.ShardCoord, Filename: r.Filename, Folder: r.Folder,
				Checksum: r.Checksum, UpdatedAt: r.UpdatedAt,
			})
		case wal.OpDel:
			s.index.Remove(e.ID)
		}
		return nil
	})
	if err != nil {
		return storeerr.Wrap("recordstore.recover", "", fmt.Errorf("%w: %v", storeerr.ErrInconsistent, err))
	}
	if replayed > 0 {
		logger.Info("recovered WAL entries into the index", "entries", replayed)
	}
	if err := s.index.Rewrite(); err != nil {
		return err
	}
	return s.wal.Truncate()
}

// Close flushes the WAL and releases the advisory lock.
func (s *Store) Close() error {
	if err := s.wal.Close(); err != nil {
		return err
	}
	if err := s.lock.Release(); err != nil {
		return err
	}
	logger.Info("record store closed", "root", s.cfg.Root)
	return nil
}

// Create persists a new record. id must be fresh.
func (s *Store) Create(r *record.Record) error {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	if _, ok := s.index.Lookup(r.ID); ok {
		return storeerr.Wrap("recordstore.create", r.ID, storeerr.ErrDuplicate)
	}
	if r.Checksum != "" {
		if existing, ok := s.index.ByChecksum(r.Checksum); ok && existing != r.ID {
			return storeerr.Wrap("recordstore.create", r.ID, storeerr.ErrChecksumConflict)
		}
	}
	if err := s.checkEmbeddingDim(r); err != nil {
		return err
	}

	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.Folder = record.NormalizeFolder(r.Folder)

	coord := shardstore.Coordinate(r.ID, s.cfg.ShardWidth)
	if err := s.shards.Write(r); err != nil {
		return err
	}
	if err := s.wal.Append(wal.Entry{Op: wal.OpPut, ID: r.ID, ShardCoord: coord, PayloadHash: r.Checksum}); err != nil {
		return err
	}
	if err := s.wal.Sync(); err != nil {
		return err
	}

	s.index.Put(r.ID, recindex.Entry{Shard: coord, Filename: r.Filename, Folder: r.Folder, Checksum: r.Checksum, UpdatedAt: r.UpdatedAt})
	s.cache.Put(r.ID, r)
	s.maybeRewriteIndex()
	logger.Debug("record created", logger.RecordID(r.ID), logger.Checksum(r.Checksum), logger.Size(r.Size))
	return nil
}

func (s *Store) checkEmbeddingDim(r *record.Record) error {
	if len(r.Embedding) == 0 {
		return nil
	}
	s.embeddingDimMu.Lock()
	defer s.embeddingDimMu.Unlock()
	if s.embeddingDim == 0 {
		s.embeddingDim = len(r.Embedding)
		return nil
	}
	if len(r.Embedding) != s.embeddingDim {
		return storeerr.Wrap("recordstore.create", r.ID, storeerr.ErrInconsistent)
	}
	return nil
}

// Get returns the record for id, read-through via the cache.
func (s *Store) Get(id string) (*record.Record, error) {
	if r, ok := s.cache.Get(id); ok {
		return r, nil
	}
	if _, ok := s.index.Lookup(id); !ok {
		return nil, storeerr.Wrap("recordstore.get", id, storeerr.ErrNotFound)
	}
	r, err := s.shards.Read(id)
	if err != nil {
		return nil, err
	}
	s.cache.Put(id, r)
	return r, nil
}

// Update applies patch to the record's mutable fields atomically.
func (s *Store) Update(id string, patch record.Patch) error {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	if patch.IsEmpty() {
		if _, ok := s.index.Lookup(id); !ok {
			return storeerr.Wrap("recordstore.update", id, storeerr.ErrNotFound)
		}
		return nil
	}

	entry, ok := s.index.Lookup(id)
	if !ok {
		return storeerr.Wrap("recordstore.update", id, storeerr.ErrNotFound)
	}
	r, err := s.shards.Read(id)
	if err != nil {
		return err
	}
	if len(patch.Embedding) > 0 {
		if err := s.checkEmbeddingDim(&record.Record{ID: id, Embedding: patch.Embedding}); err != nil {
			return err
		}
	}

	patch.Apply(r, time.Now())
	if err := s.shards.Write(r); err != nil {
		return err
	}
	if err := s.wal.Append(wal.Entry{Op: wal.OpPut, ID: id, ShardCoord: entry.Shard, PayloadHash: r.Checksum}); err != nil {
		return err
	}
	if err := s.wal.Sync(); err != nil {
		return err
	}

	entry.UpdatedAt = r.UpdatedAt
	s.index.Put(id, entry)
	s.cache.Put(id, r)
	s.maybeRewriteIndex()
	logger.Debug("record updated", logger.RecordID(id))
	return nil
}

// Delete removes the record, its shard file, and its index entries.
// Idempotent: a second delete returns a benign NotFound.
func (s *Store) Delete(id string) error {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	entry, ok := s.index.Lookup(id)
	if !ok {
		return storeerr.Wrap("recordstore.delete", id, storeerr.ErrNotFound)
	}

	if err := s.wal.Append(wal.Entry{Op: wal.OpDel, ID: id, ShardCoord: entry.Shard}); err != nil {
		return err
	}
	if err := s.wal.Sync(); err != nil {
		return err
	}
	if err := s.shards.Delete(id); err != nil {
		return err
	}

	s.index.Remove(id)
	s.cache.Invalidate(id)
	s.maybeRewriteIndex()
	logger.Debug("record deleted", logger.RecordID(id))
	return nil
}

// List returns ids whose folder equals (or, if recursive, descends from)
// folder, in insertion order.
func (s *Store) List(folder string, recursive bool) []string {
	return s.index.ByFolder(folder, recursive)
}

// FindByChecksum returns the id stored under hash, or NotFound.
func (s *Store) FindByChecksum(hash string) (string, error) {
	id, ok := s.index.ByChecksum(hash)
	if !ok {
		return "", storeerr.Wrap("recordstore.findbychecksum", hash, storeerr.ErrNotFound)
	}
	return id, nil
}

// NextID allocates a fresh, monotonically ordered record id.
func (s *Store) NextID() string {
	return strconv.FormatInt(s.index.NextIDOrd(), 10)
}

// maybeRewriteIndex rewrites the index when the configured mutation
// interval has elapsed. Caller holds globalMu.
func (s *Store) maybeRewriteIndex() {
	if s.index.MutationsSinceRewrite() >= s.cfg.IndexRewriteInterval {
		_ = s.index.Rewrite()
	}
}

// CreateFolder creates an explicit (possibly empty) folder entry.
func (s *Store) CreateFolder(path string) error {
	path = record.NormalizeFolder(path)
	return os.WriteFile(s.folderMetaPath(path), []byte("{}"), 0644)
}

// DeleteFolder removes the explicit folder entry and, if recursive, every
// record whose folder is path or a descendant of it.
func (s *Store) DeleteFolder(path string, recursive bool) error {
	path = record.NormalizeFolder(path)
	if recursive {
		for _, id := range s.index.ByFolder(path, true) {
			if err := s.Delete(id); err != nil && !errors.Is(err, storeerr.ErrNotFound) {
				return err
			}
		}
	}
	err := os.Remove(s.folderMetaPath(path))
	if err != nil && !os.IsNotExist(err) {
		return storeerr.Wrap("recordstore.deletefolder", path, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return nil
}

func (s *Store) folderMetaPath(path string) string {
	return filepath.Join(s.foldersDir, url.QueryEscape(path)+".meta")
}

// AllIDs returns every live record id, in insertion order — used by the
// compactor and the similarity ranker.
func (s *Store) AllIDs() []string {
	return s.index.AllIDs()
}

// Shards exposes the underlying shard store so the compactor can walk it
// for orphaned shard files. Not part of the CRUD surface.
func (s *Store) Shards() *shardstore.Store {
	return s.shards
}

// Verify checks that every index entry resolves to a decodable shard
// file with a matching id, returning the ids that fail.
func (s *Store) Verify() ([]string, error) {
	var broken []string
	for _, id := range s.index.AllIDs() {
		r, err := s.shards.Read(id)
		if err != nil || r.ID != id {
			broken = append(broken, id)
		}
	}
	sort.Strings(broken)
	return broken, nil
}
