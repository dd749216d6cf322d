package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/imgdedup/internal/models"
	"github.com/hyperjump/imgdedup/internal/vector"
	"go.uber.org/zap"
)

// Cache owns the persisted store of one cache directory. The store is read
// wholesale with Load and rewritten wholesale by MergeAndPersist.
type Cache struct {
	backend Backend
	logger  *zap.Logger
	mu      sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New returns a Cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{backend: backend}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the underlying backend.
func (c *Cache) Backend() Backend { return c.backend }

// Load returns the persisted store, or an empty store when none exists.
// Unreadable or misaligned artifacts fail with a CacheCorruptError.
func (c *Cache) Load(ctx context.Context) (*Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = EmptyStore()
	}
	if c.logger != nil {
		c.logger.Debug("cache loaded",
			zap.String("backend", c.backend.Name()),
			zap.Int("entries", s.Len()),
			zap.Int("dimensions", s.Dim()),
		)
	}
	return s, nil
}

// MergeAndPersist folds ids/vectors into prev and writes the complete result.
// Nothing is written when there is nothing new; an unchanged cache stays
// byte-identical across runs.
func (c *Cache) MergeAndPersist(ctx context.Context, prev *Store, ids []string, vectors *vector.Matrix) (*Store, error) {
	merged, err := Merge(prev, ids, vectors)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return merged, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	start := time.Now()
	if err := c.backend.Save(ctx, merged); err != nil {
		return nil, fmt.Errorf("persist cache: %w", err)
	}
	if c.logger != nil {
		c.logger.Debug("cache persisted",
			zap.String("backend", c.backend.Name()),
			zap.Int("entries", merged.Len()),
			zap.Int("added", len(ids)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return merged, nil
}

// Status describes the persisted cache.
type Status struct {
	Backend    string   `json:"backend"`
	Entries    int      `json:"entries"`
	Dimensions int      `json:"dimensions"`
	DiskBytes  int64    `json:"disk_bytes"`
	Paths      []string `json:"paths"`
}

// Status loads the store and reports its size.
func (c *Cache) Status(ctx context.Context) (*Status, error) {
	s, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	bytes, err := DiskUsageBytes(c.backend.Paths()...)
	if err != nil {
		return nil, err
	}
	return &Status{
		Backend:    c.backend.Name(),
		Entries:    s.Len(),
		Dimensions: s.Dim(),
		DiskBytes:  bytes,
		Paths:      c.backend.Paths(),
	}, nil
}

// Clear removes the backend's artifacts. It is the documented recovery for
// ErrCacheCorrupt.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Clear()
}

// Close releases backend resources.
func (c *Cache) Close() error {
	return c.backend.Close()
}

// CheckDimension returns a DimensionMismatchError when a non-empty store was
// written with a dimension other than want.
func CheckDimension(s *Store, want int) error {
	if s.Len() > 0 && s.Dim() != want {
		return &models.DimensionMismatchError{Expected: s.Dim(), Actual: want}
	}
	return nil
}
