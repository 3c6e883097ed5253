package ingestqueue

import (
	"errors"
	"testing"

	"github.com/marmos91/docstore/pkg/storeerr"
)

func TestSubmit_AssignsIDsAndPendingStatus(t *testing.T) {
	q := New(10, nil)
	tasks := []*UploadTask{{Filename: "a.txt"}, {Filename: "b.txt"}}
	handles, err := q.Submit(tasks)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("Submit() returned %d handles, want 2", len(handles))
	}
	for _, task := range tasks {
		if task.ID == "" {
			t.Errorf("task %q missing an assigned ID", task.Filename)
		}
		if task.Status != StatusPending {
			t.Errorf("task %q status = %v, want pending", task.Filename, task.Status)
		}
	}
	if got := q.Stats().Pending; got != 2 {
		t.Errorf("Stats().Pending = %d, want 2", got)
	}
}

func TestSubmit_QueueFullAtHighWaterMark(t *testing.T) {
	q := New(2, nil)
	_, err := q.Submit([]*UploadTask{{}, {}})
	if err != nil {
		t.Fatalf("Submit within capacity failed: %v", err)
	}
	_, err = q.Submit([]*UploadTask{{}})
	if !errors.Is(err, storeerr.ErrQueueFull) {
		t.Errorf("Submit over capacity err = %v, want ErrQueueFull", err)
	}
}

func TestDequeue_TransitionsToProcessing(t *testing.T) {
	q := New(10, nil)
	q.Submit([]*UploadTask{{ID: "1"}})

	stop := make(chan struct{})
	task, ok := q.Dequeue(stop, 0)
	if !ok {
		t.Fatalf("Dequeue returned ok=false")
	}
	if task.ID != "1" {
		t.Errorf("Dequeue() = %+v, want ID 1", task)
	}
	st, _ := q.Status("1")
	if st.Status != StatusProcessing {
		t.Errorf("Status(1) = %v, want processing", st.Status)
	}
	if q.Stats().Processing != 1 {
		t.Errorf("Stats().Processing = %d, want 1", q.Stats().Processing)
	}
}

func TestDequeue_StopsOnSignal(t *testing.T) {
	q := New(10, nil)
	stop := make(chan struct{})
	close(stop)
	_, ok := q.Dequeue(stop, 0)
	if ok {
		t.Errorf("Dequeue with closed stop channel should return ok=false")
	}
}

func TestComplete_UpdatesCountersAndTask(t *testing.T) {
	q := New(10, nil)
	q.Submit([]*UploadTask{{ID: "1"}})
	task, _ := q.Dequeue(make(chan struct{}), 0)

	q.Complete(task, StatusSucceeded, "record-1", nil)

	if task.Status != StatusSucceeded || task.ResultID != "record-1" {
		t.Errorf("task after Complete = %+v", task)
	}
	stats := q.Stats()
	if stats.Succeeded != 1 || stats.Processing != 0 {
		t.Errorf("Stats() = %+v, want Succeeded=1 Processing=0", stats)
	}
}

func TestRequeue_IncrementsRetriesAndReturnsToQueue(t *testing.T) {
	q := New(10, nil)
	q.Submit([]*UploadTask{{ID: "1"}})
	task, _ := q.Dequeue(make(chan struct{}), 0)

	q.Requeue(task)

	if got := q.Stats().Retries; got != 1 {
		t.Errorf("Stats().Retries = %d, want 1", got)
	}
	if got := q.Stats().Pending; got != 1 {
		t.Errorf("Stats().Pending = %d, want 1", got)
	}

	again, ok := q.Dequeue(make(chan struct{}), 0)
	if !ok || again.ID != "1" {
		t.Errorf("requeued task not redelivered: %+v, ok=%v", again, ok)
	}
}
