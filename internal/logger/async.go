package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes buffered records and stops background writers.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncCore is the queue shared by an AsyncHandler and every handler derived
// from it with WithAttrs or WithGroup.
type asyncCore struct {
	mu      sync.RWMutex // guards closed against sends on a closed queue
	queue   chan queued
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

type queued struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler hands records to background writers. When the buffer is full
// records below warn level are dropped and counted; warnings and errors are
// written inline instead so failures are never lost.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler starts workers writers draining a buffer of size records.
func NewAsyncHandler(inner slog.Handler, size, workers int) *AsyncHandler {
	core := &asyncCore{queue: make(chan queued, size)}
	for range max(workers, 1) {
		core.wg.Add(1)
		go func() {
			defer core.wg.Done()
			for q := range core.queue {
				_ = q.h.Handle(context.Background(), q.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, core: core}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler signature
	h.core.mu.RLock()
	if !h.core.closed {
		select {
		case h.core.queue <- queued{h: h.inner, rec: rec.Clone()}:
			h.core.mu.RUnlock()
			return nil
		default:
		}
	}
	closed := h.core.closed
	h.core.mu.RUnlock()

	if closed || rec.Level >= slog.LevelWarn {
		return h.inner.Handle(ctx, rec)
	}
	h.core.dropped.Add(1)
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// Dropped returns how many records were discarded because the buffer was full.
func (h *AsyncHandler) Dropped() int64 {
	return h.core.dropped.Load()
}

// Close writes out everything still buffered. Records handled afterwards are
// written inline. Calling Close twice is safe.
func (h *AsyncHandler) Close() {
	h.core.mu.Lock()
	if h.core.closed {
		h.core.mu.Unlock()
		return
	}
	h.core.closed = true
	close(h.core.queue)
	h.core.mu.Unlock()

	h.core.wg.Wait()
	if n := h.core.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), rec)
	}
}
