package storage

import (
	"context"
	"io"
)

// PayloadStore persists raw import file bytes so the async worker never
// depends on a live request-scoped stream, and payloads remain available for
// audit after the job finishes.
type PayloadStore interface {
	// Put stores a payload under the given key.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get retrieves a stored payload.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a stored payload.
	Delete(ctx context.Context, key string) error

	// Exists checks whether a payload is stored under the key.
	Exists(ctx context.Context, key string) (bool, error)
}
