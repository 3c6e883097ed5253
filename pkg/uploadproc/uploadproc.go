// Package uploadproc implements the per-task upload pipeline: checksum,
// dedup lookup, payload persistence, record persistence, and a
// publish-only enrichment handoff.
package uploadproc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/docstore/pkg/ingestqueue"
	"github.com/marmos91/docstore/pkg/objectstore"
	"github.com/marmos91/docstore/pkg/record"
	"github.com/marmos91/docstore/pkg/storeerr"
)

// RecordStore is the subset of *recordstore.Store the processor needs.
type RecordStore interface {
	NextID() string
	FindByChecksum(hash string) (string, error)
	Create(r *record.Record) error
}

// EnrichmentSink is the publish-only handoff boundary to the external
// enrichment collaborator. A failed handoff does not fail the task: the
// record stays ready and enrichment can be re-requested later.
type EnrichmentSink interface {
	Publish(ctx context.Context, recordID, payloadRef string) error
}

// Processor wires the object store, record store, and enrichment sink
// into a single per-task pipeline, invoked by the worker pool.
type Processor struct {
	Objects    objectstore.Store
	Records    RecordStore
	Enrichment EnrichmentSink

	// MaxCreateRetries bounds the record-persistence step's id-collision
	// retry, at most once.
	MaxCreateRetries int
}

// Process runs one task to completion and returns the resulting record
// id and whether it resolved to an existing record via dedup. The
// returned error, if any, is classified by storeerr.Retryable by the
// caller (workerpool).
func (p *Processor) Process(ctx context.Context, t *ingestqueue.UploadTask) (string, bool, error) {
	pr, err := t.Payload.Open()
	if err != nil {
		return "", false, storeerr.Wrap("uploadproc.open", t.ID, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	defer pr.Close()

	checksum, payload, err := hashAndBuffer(pr)
	if err != nil {
		// Step 1: a read failure is fatal, not retried.
		return "", false, storeerr.Wrap("uploadproc.checksum", t.ID, err)
	}
	if t.DeclaredChecksum != "" && t.DeclaredChecksum != checksum {
		return "", false, storeerr.Wrap("uploadproc.checksum", t.ID, storeerr.ErrChecksumMismatch)
	}

	// Step 2: dedup lookup.
	if existing, err := p.Records.FindByChecksum(checksum); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, storeerr.ErrNotFound) {
		return "", false, storeerr.Wrap("uploadproc.dedup", t.ID, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}

	maxRetries := p.MaxCreateRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		id := p.Records.NextID()
		key := payloadKey(id)

		// Step 3: persist payload.
		if err := p.Objects.Put(ctx, key, bytes.NewReader(payload), int64(len(payload))); err != nil {
			return "", false, storeerr.Wrap("uploadproc.persist_payload", t.ID, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
		}

		// Step 4: persist record.
		now := time.Now()
		r := &record.Record{
			ID: id, Filename: t.Filename, Checksum: checksum, Size: int64(len(payload)),
			Folder: t.Folder, Status: record.StatusReady, PayloadRef: key,
			CreatedAt: now, UpdatedAt: now,
		}
		err := p.Records.Create(r)
		if err == nil {
			// Step 5: publish-only enrichment handoff. A failure here does
			// not fail the task.
			if p.Enrichment != nil {
				_ = p.Enrichment.Publish(ctx, id, key)
			}
			return id, false, nil
		}
		if errors.Is(err, storeerr.ErrDuplicate) {
			lastErr = err
			continue // id collision: retry step 3 with a fresh id
		}
		return "", false, err
	}
	return "", false, storeerr.Wrap("uploadproc.persist_record", t.ID, lastErr)
}

func payloadKey(id string) string {
	return "payloads/" + id
}

// hashAndBuffer reads r fully while hashing it. A read failure here means
// the payload stream itself is broken; that's not a transient backend
// condition, so it's wrapped as corrupt rather than retryable.
func hashAndBuffer(r io.Reader) (string, []byte, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(r, h))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", storeerr.ErrCorrupt, err)
	}
	return hex.EncodeToString(h.Sum(nil)), data, nil
}
