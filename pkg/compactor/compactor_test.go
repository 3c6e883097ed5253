package compactor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/marmos91/docstore/pkg/record"
	"github.com/marmos91/docstore/pkg/storeerr"
)

type fakeStore struct {
	recs map[string]*record.Record
	ids  []string
}

func (f *fakeStore) AllIDs() []string { return f.ids }

func (f *fakeStore) Get(id string) (*record.Record, error) {
	r, ok := f.recs[id]
	if !ok {
		return nil, storeerr.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) Delete(id string) error {
	idx := -1
	for i, existing := range f.ids {
		if existing == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return storeerr.ErrNotFound
	}
	f.ids = append(f.ids[:idx], f.ids[idx+1:]...)
	delete(f.recs, id)
	return nil
}

func (f *fakeStore) Update(id string, patch record.Patch) error {
	r, ok := f.recs[id]
	if !ok {
		return storeerr.ErrNotFound
	}
	patch.Apply(r, time.Now())
	return nil
}

type fakeShards struct {
	ids     []string
	deleted []string
}

func (f *fakeShards) ShardIDs() ([]string, error) { return f.ids, nil }

func (f *fakeShards) Delete(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeObjects implements the full objectstore.Store surface; only Exists
// is exercised by the compactor, the rest are unused stubs.
type fakeObjects struct {
	present map[string]bool
}

func (f *fakeObjects) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	return nil
}

func (f *fakeObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, storeerr.ErrNotFound
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeObjects) Exists(ctx context.Context, key string) (bool, error) {
	return f.present[key], nil
}

func (f *fakeObjects) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", nil
}

func (f *fakeObjects) PutText(ctx context.Context, key string, text string) error { return nil }

func (f *fakeObjects) GetText(ctx context.Context, key string) (string, error) { return "", nil }

func TestRun_ReconcilesUploadingWithExistingPayload(t *testing.T) {
	store := &fakeStore{
		ids: []string{"1"},
		recs: map[string]*record.Record{
			"1": {ID: "1", Status: record.StatusUploading, PayloadRef: "payloads/1"},
		},
	}
	shards := &fakeShards{ids: []string{"1"}}
	objects := &fakeObjects{present: map[string]bool{"payloads/1": true}}

	c := New(store, shards, objects, nil)
	res := c.Run()

	if res.UploadingReconciled != 1 {
		t.Errorf("UploadingReconciled = %d, want 1", res.UploadingReconciled)
	}
	if store.recs["1"].Status != record.StatusReady {
		t.Errorf("record status = %v, want ready", store.recs["1"].Status)
	}
}

func TestRun_FailsUploadingWithMissingPayload(t *testing.T) {
	store := &fakeStore{
		ids: []string{"1"},
		recs: map[string]*record.Record{
			"1": {ID: "1", Status: record.StatusUploading, PayloadRef: "payloads/missing"},
		},
	}
	shards := &fakeShards{ids: []string{"1"}}
	objects := &fakeObjects{present: map[string]bool{}}

	c := New(store, shards, objects, nil)
	res := c.Run()

	if res.UploadingFailed != 1 {
		t.Errorf("UploadingFailed = %d, want 1", res.UploadingFailed)
	}
	if store.recs["1"].Status != record.StatusFailed {
		t.Errorf("record status = %v, want failed", store.recs["1"].Status)
	}
}

func TestRun_RemovesOrphanShards(t *testing.T) {
	store := &fakeStore{ids: []string{"live"}, recs: map[string]*record.Record{"live": {ID: "live", Status: record.StatusReady}}}
	shards := &fakeShards{ids: []string{"live", "orphan"}}
	objects := &fakeObjects{present: map[string]bool{}}

	c := New(store, shards, objects, nil)
	res := c.Run()

	if res.OrphanShardsRemoved != 1 {
		t.Errorf("OrphanShardsRemoved = %d, want 1", res.OrphanShardsRemoved)
	}
	if len(shards.deleted) != 1 || shards.deleted[0] != "orphan" {
		t.Errorf("deleted = %v, want [orphan]", shards.deleted)
	}
}

func TestRun_HealsIndexEntryWithMissingShard(t *testing.T) {
	store := &fakeStore{ids: []string{"1", "2"}, recs: map[string]*record.Record{
		"2": {ID: "2", Status: record.StatusReady},
	}}
	shards := &fakeShards{ids: []string{"2"}}

	c := New(store, shards, &fakeObjects{}, nil)
	res := c.Run()

	if res.IndexEntriesHealed != 1 {
		t.Errorf("IndexEntriesHealed = %d, want 1", res.IndexEntriesHealed)
	}
	for _, id := range store.ids {
		if id == "1" {
			t.Errorf("dangling index entry %q was not removed", "1")
		}
	}
}

func TestRun_LeavesReadyRecordsAlone(t *testing.T) {
	store := &fakeStore{ids: []string{"1"}, recs: map[string]*record.Record{"1": {ID: "1", Status: record.StatusReady}}}
	shards := &fakeShards{ids: []string{"1"}}
	c := New(store, shards, &fakeObjects{}, nil)
	res := c.Run()
	if res.UploadingReconciled != 0 || res.UploadingFailed != 0 {
		t.Errorf("Run() on ready record touched uploading counters: %+v", res)
	}
}
