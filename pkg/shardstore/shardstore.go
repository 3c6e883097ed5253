// Package shardstore implements the on-disk record layout: one file per
// record, bucketed into numeric shard directories, written with an atomic
// temp-file-then-rename sequence.
package shardstore

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/marmos91/docstore/pkg/record"
	"github.com/marmos91/docstore/pkg/storeerr"
)

// Store writes and reads record files under a root directory, bucketed by
// shard coordinate.
type Store struct {
	root  string
	width int64
}

// New returns a Store rooted at dir with shard bucket size width (a
// power-of-ten, >= 100 and <= 10000).
func New(dir string, width int64) *Store {
	return &Store{root: dir, width: width}
}

// Coordinate computes the shard coordinate ⌊id_ord / S⌋ for id. Numeric ids
// are parsed directly; non-numeric ids are partitioned by a stable hash
// modulo a large power of ten.
func Coordinate(id string, width int64) int64 {
	ord := ordinal(id)
	return ord / width
}

const hashModulus = 1_000_000_000_000 // 10^12, "a large power of ten"

func ordinal(id string) int64 {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n >= 0 {
		return n
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64() % hashModulus)
}

func shardDirName(coord, width int64) string {
	lo := coord * width
	hi := lo + width - 1
	return fmt.Sprintf("%06d-%06d", lo, hi)
}

func (s *Store) dirFor(id string) string {
	coord := Coordinate(id, s.width)
	return filepath.Join(s.root, shardDirName(coord, s.width))
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dirFor(id), id+".rec")
}

// Write atomically persists r. It creates the target shard directory if
// absent, writes to a temp file in the same directory, fsyncs it, and
// renames it over the target path.
func (s *Store) Write(r *record.Record) error {
	dir := s.dirFor(r.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return storeerr.Wrap("shardstore.write", r.ID, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}

	data, err := json.Marshal(r)
	if err != nil {
		return storeerr.Wrap("shardstore.write", r.ID, fmt.Errorf("%w: %v", storeerr.ErrCorrupt, err))
	}

	target := s.pathFor(r.ID)
	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return storeerr.Wrap("shardstore.write", r.ID, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return storeerr.Wrap("shardstore.write", r.ID, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return storeerr.Wrap("shardstore.write", r.ID, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return storeerr.Wrap("shardstore.write", r.ID, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return storeerr.Wrap("shardstore.write", r.ID, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return nil
}

// Read decodes the record stored under id, or fails NotFound/Corrupt.
func (s *Store) Read(id string) (*record.Record, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storeerr.Wrap("shardstore.read", id, storeerr.ErrNotFound)
		}
		return nil, storeerr.Wrap("shardstore.read", id, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	var r record.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, storeerr.Wrap("shardstore.read", id, fmt.Errorf("%w: %v", storeerr.ErrCorrupt, err))
	}
	return &r, nil
}

// Delete removes the shard file for id. It is idempotent: deleting an
// absent record is not an error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.pathFor(id))
	if err != nil && !os.IsNotExist(err) {
		return storeerr.Wrap("shardstore.delete", id, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return nil
}

// Exists reports whether a shard file is present for id, without decoding
// it.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.pathFor(id))
	return err == nil
}

// ShardIDs walks every shard directory under the root and returns the ids
// of every record file found, used by the compactor to detect orphans.
func (s *Store) ShardIDs() ([]string, error) {
	var ids []string
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return ids, nil
		}
		return nil, storeerr.Wrap("shardstore.list", s.root, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	for _, dirEntry := range entries {
		if !dirEntry.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, dirEntry.Name()))
		if err != nil {
			return nil, storeerr.Wrap("shardstore.list", dirEntry.Name(), fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasSuffix(name, ".tmp") || !strings.HasSuffix(name, ".rec") {
				continue
			}
			ids = append(ids, strings.TrimSuffix(name, ".rec"))
		}
	}
	return ids, nil
}
