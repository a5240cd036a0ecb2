package web

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sonnixhq/songfetch/internal/batch"
	"github.com/sonnixhq/songfetch/internal/progress"
	"github.com/sonnixhq/songfetch/internal/songlist"
)

const (
	// batchTTL is how long a finished batch stays queryable before the
	// cleanup loop drops it.
	batchTTL = 30 * time.Minute

	batchCleanupInterval = time.Minute
)

// Batch is one submitted download batch tracked by the server.
type Batch struct {
	ID        string
	Requests  []songlist.Request
	Notice    string
	State     *progress.State
	CreatedAt time.Time

	cancel context.CancelFunc

	mu      sync.Mutex
	summary *batch.Summary
}

func newBatch(requests []songlist.Request, notice string, cancel context.CancelFunc) *Batch {
	id := uuid.NewString()
	return &Batch{
		ID:        id,
		Requests:  requests,
		Notice:    notice,
		State:     progress.New(id, batch.Labels(requests)),
		CreatedAt: time.Now(),
		cancel:    cancel,
	}
}

// Cancel stops dispatching new items. Items already downloading run to
// completion before the batch settles.
func (b *Batch) Cancel() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Batch) setSummary(s batch.Summary) {
	b.mu.Lock()
	b.summary = &s
	b.mu.Unlock()
}

// Summary returns the final per-item results, or nil while the batch is
// still running.
func (b *Batch) Summary() *batch.Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

// registry holds batches by ID and enforces the one-active-batch rule.
// A plain map under a mutex keeps the check-and-insert in Add atomic.
type registry struct {
	mu      sync.Mutex
	batches map[string]*Batch
}

func newRegistry() *registry {
	return &registry{batches: make(map[string]*Batch)}
}

// Add registers b if no other batch is active. When one is, it returns
// that batch's ID and ErrBatchActive so the caller can report it.
func (r *registry) Add(b *Batch) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.batches {
		if !existing.State.Status().Terminal() {
			return id, batch.ErrBatchActive
		}
	}
	r.batches[b.ID] = b
	return b.ID, nil
}

func (r *registry) Get(id string) (*Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	return b, ok
}

// Active returns the currently running batch, if any.
func (r *registry) Active() (*Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if !b.State.Status().Terminal() {
			return b, true
		}
	}
	return nil, false
}

// RemoveExpired drops batches that finished more than ttl ago and
// returns how many were removed.
func (r *registry) RemoveExpired(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, b := range r.batches {
		done := b.State.CompletedAt()
		if done.IsZero() {
			continue
		}
		if now.Sub(done) > ttl {
			delete(r.batches, id)
			removed++
		}
	}
	return removed
}

// StartCleanup sweeps expired batches until ctx is cancelled.
func (r *registry) StartCleanup(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.RemoveExpired(time.Now(), ttl); n > 0 {
					log.Printf("[web] removed %d expired batches", n)
				}
			}
		}
	}()
}
