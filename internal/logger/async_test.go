package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// sink records what reaches the wrapped handler. gate, when set, blocks
// every write until it is closed.
type sink struct {
	mu    sync.Mutex
	msgs  []string
	attrs map[string]slog.Value
	gate  chan struct{}
}

func (s *sink) Enabled(context.Context, slog.Level) bool { return true }

func (s *sink) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler signature
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, rec.Message)
	rec.Attrs(func(a slog.Attr) bool {
		if s.attrs == nil {
			s.attrs = make(map[string]slog.Value)
		}
		s.attrs[a.Key] = a.Value
		return true
	})
	return nil
}

func (s *sink) WithAttrs([]slog.Attr) slog.Handler { return s }
func (s *sink) WithGroup(string) slog.Handler      { return s }

func (s *sink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *sink) has(msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func record(level slog.Level, msg string) slog.Record {
	return slog.NewRecord(time.Now(), level, msg, 0)
}

func TestAsyncHandler_CloseFlushes(t *testing.T) {
	out := &sink{}
	h := NewAsyncHandler(out, 512, 2)

	for range 300 {
		_ = h.Handle(context.Background(), record(slog.LevelInfo, "task updated"))
	}
	h.Close()

	if got := out.len(); got != 300 {
		t.Fatalf("expected 300 records after close, got %d", got)
	}
	if h.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", h.Dropped())
	}
}

func TestAsyncHandler_ConcurrentHandle(t *testing.T) {
	out := &sink{}
	h := NewAsyncHandler(out, 10000, 4)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = h.Handle(context.Background(), record(slog.LevelInfo, "upload committed"))
			}
		}()
	}
	wg.Wait()
	h.Close()

	if got := out.len(); got != 5000 {
		t.Fatalf("expected 5000 records, got %d", got)
	}
}

func TestAsyncHandler_FullBufferDropsInfoKeepsErrors(t *testing.T) {
	out := &sink{gate: make(chan struct{})}
	h := NewAsyncHandler(out, 1, 1)

	// The worker blocks on the first record and the second fills the buffer.
	_ = h.Handle(context.Background(), record(slog.LevelInfo, "first"))
	deadline := time.Now().Add(time.Second)
	for len(h.core.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	_ = h.Handle(context.Background(), record(slog.LevelInfo, "second"))

	_ = h.Handle(context.Background(), record(slog.LevelDebug, "noise"))
	if h.Dropped() != 1 {
		t.Fatalf("expected 1 dropped record, got %d", h.Dropped())
	}

	done := make(chan struct{})
	go func() {
		_ = h.Handle(context.Background(), record(slog.LevelError, "persist failed"))
		close(done)
	}()
	close(out.gate)
	<-done
	h.Close()

	if !out.has("persist failed") {
		t.Fatal("error record must be written when the buffer is full")
	}
	if out.has("noise") {
		t.Fatal("debug record should have been dropped")
	}
	if !out.has("async logger dropped records") {
		t.Fatal("expected a summary of dropped records on close")
	}
	if v := out.attrs["dropped"]; v.Int64() != 1 {
		t.Fatalf("expected dropped=1 in summary, got %v", v)
	}
}

func TestAsyncHandler_HandleAfterClose(t *testing.T) {
	out := &sink{}
	h := NewAsyncHandler(out, 4, 1)
	h.Close()
	h.Close()

	if err := h.Handle(context.Background(), record(slog.LevelInfo, "late")); err != nil {
		t.Fatalf("Handle after close: %v", err)
	}
	if !out.has("late") {
		t.Fatal("records after close are written inline")
	}
}

func TestAsyncHandler_DerivedHandlersShareQueue(t *testing.T) {
	out := &sink{}
	h := NewAsyncHandler(out, 16, 1)
	child := h.WithAttrs([]slog.Attr{slog.String("tenant_id", "acme")}).WithGroup("task")

	_ = child.Handle(context.Background(), record(slog.LevelInfo, "from child"))
	h.Close()

	if !out.has("from child") {
		t.Fatal("closing the parent must flush records of derived handlers")
	}
}
