// Package store persists named collections as JSON values in a key-value
// backend. Every collection lives under one fixed key.
package store

import (
	"context"
	"errors"
)

// ErrCorrupt is returned by Load when the stored value cannot be decoded
var ErrCorrupt = errors.New("stored value is corrupt")

// Entry is a single key/value pair written by Save
type Entry struct {
	Key   string
	Value any
}

// Store is a durable key-value backend for JSON-encoded collections
type Store interface {
	// Load decodes the value stored under key into dst.
	// It reports false when nothing is stored under key.
	Load(ctx context.Context, key string, dst any) (bool, error)

	// Save writes all entries atomically: either every key is updated or none is.
	Save(ctx context.Context, entries ...Entry) error

	// Close releases the backend
	Close() error
}

// Maintainer is implemented by backends that support `rbacdash store`
// inspection and import
type Maintainer interface {
	// Keys returns every stored key, without any backend prefix
	Keys(ctx context.Context) ([]string, error)
	// PutRaw stores data under key verbatim
	PutRaw(ctx context.Context, key string, data []byte) error
}

var (
	_ Maintainer = (*BoltStore)(nil)
	_ Maintainer = (*RedisStore)(nil)
)
