// Package natsobj implements the blob store port using the NATS JetStream object store.
package natsobj

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/TrackForge/internal/domain"
	"github.com/Strob0t/TrackForge/internal/port/blobstore"
)

const metaContentType = "content-type"

// Store wraps a JetStream object store bucket.
type Store struct {
	obs jetstream.ObjectStore
}

// New creates a blob store over the given bucket.
func New(obs jetstream.ObjectStore) *Store {
	return &Store{obs: obs}
}

// Put streams r into the bucket under key, replacing any previous object.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (*blobstore.Info, error) {
	meta := jetstream.ObjectMeta{Name: key}
	if contentType != "" {
		meta.Metadata = map[string]string{metaContentType: contentType}
	}
	info, err := s.obs.Put(ctx, meta, r)
	if err != nil {
		return nil, fmt.Errorf("object put %s: %w", key, err)
	}
	return toInfo(info), nil
}

// Get opens the object stored under key. The caller closes the reader.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, *blobstore.Info, error) {
	res, err := s.obs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("object get %s: %w", key, err)
	}
	info, err := res.Info()
	if err != nil {
		_ = res.Close()
		return nil, nil, fmt.Errorf("object info %s: %w", key, err)
	}
	return res, toInfo(info), nil
}

// Delete removes the object under key. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.obs.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("object delete %s: %w", key, err)
	}
	return nil
}

func toInfo(info *jetstream.ObjectInfo) *blobstore.Info {
	return &blobstore.Info{
		Key:         info.Name,
		Size:        int64(info.Size), //nolint:gosec // object sizes are bounded by the bucket limit
		ContentType: info.Metadata[metaContentType],
	}
}
