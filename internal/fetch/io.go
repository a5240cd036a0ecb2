package fetch

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
		return cr.r.Read(p)
	}
}

// copyWithContext copies src to dst, stopping at the next read once the
// context ends.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, &contextReader{ctx: ctx, r: src})
}

// ProgressFunc receives download progress. total is 0 when unknown.
type ProgressFunc func(written, total int64)

const progressInterval = 100 * time.Millisecond

// progressWriter invokes a callback as bytes flow, throttled so small reads
// do not drown the consumer.
type progressWriter struct {
	total      int64
	fn         ProgressFunc
	written    atomic.Int64
	lastUpdate atomic.Int64
}

func newProgressWriter(total int64, fn ProgressFunc) *progressWriter {
	return &progressWriter{total: total, fn: fn}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	written := w.written.Add(int64(n))
	now := time.Now().UnixNano()
	last := w.lastUpdate.Load()
	if now-last >= int64(progressInterval) && w.lastUpdate.CompareAndSwap(last, now) {
		w.fn(written, w.total)
	}
	return n, nil
}

// finish flushes the final count past the throttle.
func (w *progressWriter) finish() {
	w.fn(w.written.Load(), w.total)
}

// reset rearms the writer for a restarted download.
func (w *progressWriter) reset(total int64) {
	w.total = total
	w.written.Store(0)
	w.lastUpdate.Store(0)
}
