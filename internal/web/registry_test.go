package web

import (
	"errors"
	"testing"
	"time"

	"github.com/sonnixhq/songfetch/internal/batch"
	"github.com/sonnixhq/songfetch/internal/songlist"
)

func testRequests(titles ...string) []songlist.Request {
	requests := make([]songlist.Request, len(titles))
	for i, title := range titles {
		requests[i] = songlist.Request{Title: title, Artist: "Artist", RawLine: title + " by Artist"}
	}
	return requests
}

func TestRegistryEnforcesSingleActive(t *testing.T) {
	reg := newRegistry()

	first := newBatch(testRequests("Song A"), "", nil)
	if id, err := reg.Add(first); err != nil || id != first.ID {
		t.Fatalf("adding the first batch: id %q, err %v", id, err)
	}

	second := newBatch(testRequests("Song B"), "", nil)
	id, err := reg.Add(second)
	if !errors.Is(err, batch.ErrBatchActive) {
		t.Fatalf("expected ErrBatchActive, got %v", err)
	}
	if id != first.ID {
		t.Fatalf("expected the conflict to name %s, got %q", first.ID, id)
	}
	if _, ok := reg.Get(second.ID); ok {
		t.Fatalf("rejected batch must not be registered")
	}

	first.State.Start()
	first.State.Complete()
	if _, err := reg.Add(second); err != nil {
		t.Fatalf("adding after the first finished: %v", err)
	}

	active, ok := reg.Active()
	if !ok || active.ID != second.ID {
		t.Fatalf("expected %s active, got %+v (%v)", second.ID, active, ok)
	}

	// Cancel on a batch without a cancel func must not panic.
	second.Cancel()
}

func TestRegistryRemoveExpired(t *testing.T) {
	reg := newRegistry()

	done := newBatch(testRequests("Song A"), "", nil)
	done.State.Start()
	done.State.Complete()
	if _, err := reg.Add(done); err != nil {
		t.Fatalf("adding finished batch: %v", err)
	}

	running := newBatch(testRequests("Song B"), "", nil)
	if _, err := reg.Add(running); err != nil {
		t.Fatalf("adding running batch: %v", err)
	}

	later := time.Now().Add(batchTTL + time.Minute)
	if removed := reg.RemoveExpired(later, batchTTL); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := reg.Get(done.ID); ok {
		t.Fatalf("expected the expired batch gone")
	}
	if _, ok := reg.Get(running.ID); !ok {
		t.Fatalf("the running batch must never expire")
	}

	if removed := reg.RemoveExpired(later, batchTTL); removed != 0 {
		t.Fatalf("expected nothing left to remove, got %d", removed)
	}
}

func TestBatchStateLabels(t *testing.T) {
	b := newBatch(testRequests("Song A", "Song B"), "capped", nil)
	snap := b.State.Snapshot()
	if snap.Total != 2 {
		t.Fatalf("expected 2 items, got %d", snap.Total)
	}
	if snap.Items[0].Label != "Song A by Artist" {
		t.Fatalf("expected the item label from the request phrase, got %q", snap.Items[0].Label)
	}
	if b.Notice != "capped" {
		t.Fatalf("expected the notice kept on the batch, got %q", b.Notice)
	}
	if b.Summary() != nil {
		t.Fatalf("expected no summary before the run finishes")
	}
}
