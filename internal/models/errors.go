package models

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheCorrupt is matched by errors.Is for any unreadable or inconsistent cache store.
	ErrCacheCorrupt = errors.New("cache corrupt")
	// ErrProviderFailure is matched by errors.Is when the embedding provider fails a batch.
	ErrProviderFailure = errors.New("embedding provider failure")
	// ErrDimensionMismatch is matched by errors.Is when two embedding dimensions disagree.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrConfiguration is matched by errors.Is for invalid configuration values.
	ErrConfiguration = errors.New("invalid configuration")
)

// CacheCorruptError reports persisted cache artifacts that cannot be trusted.
// Recovery is to clear the cache directory and rebuild.
type CacheCorruptError struct {
	Path   string
	Reason string
	cause  error
}

// NewCacheCorruptError returns a CacheCorruptError for path. cause may be nil.
func NewCacheCorruptError(path, reason string, cause error) *CacheCorruptError {
	return &CacheCorruptError{Path: path, Reason: reason, cause: cause}
}

func (e *CacheCorruptError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("cache corrupt at %s: %s: %v", e.Path, e.Reason, e.cause)
	}
	return fmt.Sprintf("cache corrupt at %s: %s", e.Path, e.Reason)
}

func (e *CacheCorruptError) Unwrap() error { return e.cause }

// Is reports ErrCacheCorrupt as a match.
func (e *CacheCorruptError) Is(target error) bool { return target == ErrCacheCorrupt }

// ProviderError reports a failed provider batch.
type ProviderError struct {
	Batch int
	Paths []string
	cause error
}

// NewProviderError wraps cause as the failure of batch.
func NewProviderError(batch int, paths []string, cause error) *ProviderError {
	return &ProviderError{Batch: batch, Paths: paths, cause: cause}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding batch %d (%d images) failed: %v", e.Batch, len(e.Paths), e.cause)
}

func (e *ProviderError) Unwrap() error { return e.cause }

// Is reports ErrProviderFailure as a match.
func (e *ProviderError) Is(target error) bool { return target == ErrProviderFailure }

// ImageError reports an image that could not be read before it reached the
// provider. It counts as a provider failure.
type ImageError struct {
	Path  string
	cause error
}

// NewImageError wraps cause as the failure to read path.
func NewImageError(path string, cause error) *ImageError {
	return &ImageError{Path: path, cause: cause}
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("read image %s: %v", e.Path, e.cause)
}

func (e *ImageError) Unwrap() error { return e.cause }

// Is reports ErrProviderFailure as a match.
func (e *ImageError) Is(target error) bool { return target == ErrProviderFailure }

// DimensionMismatchError indicates vectors of different lengths were mixed,
// typically a cache written by another model.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is reports ErrDimensionMismatch as a match.
func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// ConfigError rejects a configuration value before any work starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is reports ErrConfiguration as a match.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }
