// Package blobstore defines the port for storing attachment file contents.
package blobstore

import (
	"context"
	"io"
)

// Info describes a stored blob.
type Info struct {
	Key         string
	Size        int64
	ContentType string
}

// Store keeps opaque file contents under caller-chosen keys.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (*Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Info, error)
	Delete(ctx context.Context, key string) error
}
