// Package blob abstracts the object store holding patient diaries as JSON
// blobs. Backends implement GCS-style generation semantics: every object
// carries a monotonically-increasing generation number and writes may be
// made conditional on it.
package blob

import (
	"context"
	"errors"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrGenerationMismatch indicates a conditional write lost the race:
	// the stored generation no longer matches the caller's.
	ErrGenerationMismatch = errors.New("generation mismatch")
)

// Store is a key-addressed object store with optimistic concurrency.
//
// Generation semantics follow Google Cloud Storage: generations are
// positive and increase with every successful write. A conditional put
// with generation 0 requires the object to not exist yet.
type Store interface {
	// Get returns the object's data and current generation.
	// Fails with ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (data []byte, generation int64, err error)

	// Put writes unconditionally and returns the new generation.
	Put(ctx context.Context, key string, data []byte) (int64, error)

	// PutIfGenerationMatch writes only when the stored generation equals
	// gen; gen 0 requires the object to be absent. Fails with
	// ErrGenerationMismatch when the condition does not hold.
	PutIfGenerationMatch(ctx context.Context, key string, data []byte, gen int64) (int64, error)

	// Delete removes the object. Fails with ErrNotFound when absent.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
