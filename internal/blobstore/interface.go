package blobstore

import (
	"context"
	"io"
)

// PutResult describes one persisted blob payload.
type PutResult struct {
	Digest    string
	SizeBytes int64
	BlobKey   string
}

// BlobStore is the byte-storage abstraction holding image content.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (PutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key, including bytes no row refers to.
	Keys(ctx context.Context) ([]string, error)
}
