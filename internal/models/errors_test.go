package models

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"cache corrupt", NewCacheCorruptError("/c", "bad magic", nil), ErrCacheCorrupt},
		{"cache corrupt wrapped", fmt.Errorf("load: %w", NewCacheCorruptError("/c", "short", io.ErrUnexpectedEOF)), ErrCacheCorrupt},
		{"provider", NewProviderError(2, []string{"a.jpg"}, errors.New("decode")), ErrProviderFailure},
		{"image", NewImageError("a.jpg", io.ErrUnexpectedEOF), ErrProviderFailure},
		{"image cause", NewImageError("a.jpg", io.ErrUnexpectedEOF), io.ErrUnexpectedEOF},
		{"dimension", &DimensionMismatchError{Expected: 1280, Actual: 512}, ErrDimensionMismatch},
		{"config", &ConfigError{Field: "threshold", Reason: "must be in (0,1]"}, ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
		})
	}
}

func TestCacheCorruptError_unwrap(t *testing.T) {
	err := NewCacheCorruptError("/c/features.bin", "truncated", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("cause should be reachable through Unwrap")
	}
	if errors.Is(err, ErrProviderFailure) {
		t.Error("cache corrupt must not match provider failure")
	}
}

func TestProviderError_message(t *testing.T) {
	err := NewProviderError(3, []string{"a", "b"}, errors.New("boom"))
	want := "embedding batch 3 (2 images) failed: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
