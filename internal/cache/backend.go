package cache

import (
	"context"
	"fmt"
)

// Backend persists a Store for one cache directory.
type Backend interface {
	// Name returns the backend identifier used in configuration.
	Name() string
	// Load returns the persisted store, or nil when nothing has been written yet.
	Load(ctx context.Context) (*Store, error)
	// Save replaces the persisted store with s.
	Save(ctx context.Context, s *Store) error
	// Paths lists the artifacts owned by the backend.
	Paths() []string
	// Clear removes the backend's artifacts and nothing else.
	Clear() error
	Close() error
}

// BackendType names a Backend implementation.
type BackendType string

const (
	// BackendFiles writes features.bin and identifiers.bin.
	BackendFiles BackendType = "files"
	// BackendSQLite writes one embeddings.db table.
	BackendSQLite BackendType = "sqlite"
)

// NewBackend creates a backend of the given type rooted at dir.
func NewBackend(kind BackendType, dir string, compression Compression) (Backend, error) {
	switch kind {
	case BackendFiles, "":
		return NewFileBackend(dir, compression)
	case BackendSQLite:
		return NewSQLiteBackend(dir), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: files, sqlite)", kind)
	}
}
