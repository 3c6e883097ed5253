package wal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	entries := []Entry{
		{Op: OpPut, ID: "1", ShardCoord: 0, PayloadHash: "aaa"},
		{Op: OpPut, ID: "2", ShardCoord: 0, PayloadHash: "bbb"},
		{Op: OpDel, ID: "1"},
	}
	for _, e := range entries {
		if err := w.Append(e); err != nil {
			t.Fatalf("Append(%v): %v", e, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w2, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()

	var replayed []Entry
	if err := w2.Replay(func(e Entry) error {
		replayed = append(replayed, e)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if len(replayed) != len(entries) {
		t.Fatalf("replayed %d entries, want %d", len(replayed), len(entries))
	}
	for i, e := range entries {
		if replayed[i].ID != e.ID || replayed[i].Op != e.Op {
			t.Errorf("replayed[%d] = %+v, want %+v", i, replayed[i], e)
		}
	}
}

func TestTruncate_RemovesSegmentsAndStartsFresh(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	if err := w.Append(Entry{Op: OpPut, ID: "1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	var replayed []Entry
	if err := w.Replay(func(e Entry) error {
		replayed = append(replayed, e)
		return nil
	}); err != nil {
		t.Fatalf("Replay after truncate: %v", err)
	}
	if len(replayed) != 0 {
		t.Errorf("Replay after Truncate() = %v, want empty", replayed)
	}
}

func TestOpen_CreatesDirIfAbsent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "wal")
	w, err := Open(dir, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()
	if err := w.Append(Entry{Op: OpPut, ID: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestReplay_EmptyLinesSkipped(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Append(Entry{Op: OpPut, ID: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Pad the segment with blank lines after the entry.
	f, err := os.OpenFile(segmentPath(dir, 1), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	if _, err := f.WriteString("\n\n"); err != nil {
		t.Fatalf("write blank lines: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close segment: %v", err)
	}

	w2, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()

	count := 0
	if err := w2.Replay(func(e Entry) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if count != 1 {
		t.Errorf("Replay count = %d, want 1", count)
	}
}
