package natsobj_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	natsadapter "github.com/Strob0t/TrackForge/internal/adapter/nats"
	"github.com/Strob0t/TrackForge/internal/adapter/natsobj"
	"github.com/Strob0t/TrackForge/internal/domain"
)

func setupStore(t *testing.T) *natsobj.Store {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	ctx := context.Background()
	q, err := natsadapter.Connect(ctx, url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	obs, err := q.ObjectStore(ctx, "TRACKFORGE_TEST_BLOBS", 8<<20)
	if err != nil {
		t.Fatalf("ObjectStore: %v", err)
	}
	return natsobj.New(obs)
}

func TestStore_PutGetDelete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	key := "tenant-a/task-1/" + t.Name()
	body := []byte("%PDF-1.7 fake contents")

	info, err := s.Put(ctx, key, "application/pdf", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len(body)) {
		t.Errorf("expected size %d, got %d", len(body), info.Size)
	}

	rc, got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, body) {
		t.Errorf("content mismatch: %q", data)
	}
	if got.ContentType != "application/pdf" {
		t.Errorf("expected content type application/pdf, got %q", got.ContentType)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Get(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
}
