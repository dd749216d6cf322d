package config

import (
	"fmt"
	"math"
	"slices"

	"github.com/hyperjump/imgdedup/internal/models"
)

// Validate rejects settings that would fail later, before any work starts.
func (c *Config) Validate() error {
	t := float64(c.Dedupe.Threshold)
	if math.IsNaN(t) || t <= 0 || t > 1 {
		return &models.ConfigError{Field: "dedupe.threshold", Reason: fmt.Sprintf("%v is outside (0,1]", c.Dedupe.Threshold)}
	}
	positive := []struct {
		field string
		v     int
	}{
		{"dedupe.batch_size", c.Dedupe.BatchSize},
		{"dedupe.chunk_size", c.Dedupe.ChunkSize},
		{"dedupe.workers", c.Dedupe.Workers},
		{"embedding.dimensions", c.Embedding.Dimensions},
		{"embedding.image_size", c.Embedding.ImageSize},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return &models.ConfigError{Field: p.field, Reason: fmt.Sprintf("%d must be positive", p.v)}
		}
	}
	if c.Embedding.MemoSize < 0 {
		return &models.ConfigError{Field: "embedding.memo_size", Reason: "must not be negative"}
	}
	if c.Watch.Debounce < 0 {
		return &models.ConfigError{Field: "watch.debounce", Reason: "must not be negative"}
	}
	choices := []struct {
		field   string
		v       string
		allowed []string
	}{
		{"cache.backend", c.Cache.Backend, []string{"files", "sqlite"}},
		{"cache.compression", c.Cache.Compression, []string{"none", "zstd"}},
		{"cache.key", c.Cache.Key, []string{"content", "path", "filename"}},
		{"embedding.provider", c.Embedding.Provider, []string{"onnx", "mock"}},
	}
	for _, ch := range choices {
		if !slices.Contains(ch.allowed, ch.v) {
			return &models.ConfigError{Field: ch.field, Reason: fmt.Sprintf("unknown value %q (supported: %v)", ch.v, ch.allowed)}
		}
	}
	if c.Cache.Dir == "" {
		return &models.ConfigError{Field: "cache.dir", Reason: "must be set"}
	}
	return nil
}
