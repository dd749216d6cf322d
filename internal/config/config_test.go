package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/imgdedup/internal/models"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
dedupe:
  threshold: 0.9
  batch_size: 32
cache:
  backend: sqlite
server:
  host: "127.0.0.1"
  port: 9000
watch:
  debounce: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Dedupe.Threshold != 0.9 || cfg.Dedupe.BatchSize != 32 {
		t.Errorf("unexpected dedupe config: %+v", cfg.Dedupe)
	}
	if cfg.Dedupe.ChunkSize != 10000 {
		t.Errorf("chunk_size should default to 10000, got %d", cfg.Dedupe.ChunkSize)
	}
	if cfg.Cache.Backend != "sqlite" || cfg.Cache.Key != "content" {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("debounce = %v, want 500ms", cfg.Watch.Debounce)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
cache:
  dir: "./data/cache"
output:
  dir: "/abs/out"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "cache"); cfg.Cache.Dir != want {
		t.Errorf("cache dir = %s, want %s", cfg.Cache.Dir, want)
	}
	if cfg.Output.Dir != "/abs/out" {
		t.Errorf("output dir = %s, want /abs/out", cfg.Output.Dir)
	}
	if want := filepath.Join(dir, "assets", "mobilenetv4_conv_medium.e500_r256_in1k_features.onnx"); cfg.Embedding.ModelPath != want {
		t.Errorf("model path = %s, want %s", cfg.Embedding.ModelPath, want)
	}
	if cfg.Embedding.LibraryPath != "" {
		t.Errorf("library path should stay empty, got %s", cfg.Embedding.LibraryPath)
	}
}

func TestLoad_errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("dedupe: [oops"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Dedupe.Threshold != 0.95 {
		t.Errorf("default threshold: got %v", cfg.Dedupe.Threshold)
	}
	if cfg.Dedupe.BatchSize != 16 {
		t.Errorf("default batch size: got %d", cfg.Dedupe.BatchSize)
	}
	if cfg.Dedupe.Workers <= 0 {
		t.Errorf("default workers: got %d", cfg.Dedupe.Workers)
	}
	if cfg.Dedupe.Recursive {
		t.Error("recursive should default to false")
	}
	if len(cfg.Dedupe.Extensions) != 8 || cfg.Dedupe.Extensions[0] != ".jpg" {
		t.Errorf("extensions: got %v", cfg.Dedupe.Extensions)
	}
	if cfg.Embedding.Dimensions != 1280 || cfg.Embedding.ImageSize != 256 {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Embedding.InputName != "input" || cfg.Embedding.OutputName != "output" {
		t.Errorf("tensor names: %+v", cfg.Embedding)
	}
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("debounce default: %v", cfg.Watch.Debounce)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"threshold above one", func(c *Config) { c.Dedupe.Threshold = 1.5 }, "dedupe.threshold"},
		{"negative threshold", func(c *Config) { c.Dedupe.Threshold = -0.1 }, "dedupe.threshold"},
		{"zero batch", func(c *Config) { c.Dedupe.BatchSize = -1 }, "dedupe.batch_size"},
		{"zero chunk", func(c *Config) { c.Dedupe.ChunkSize = -5 }, "dedupe.chunk_size"},
		{"bad backend", func(c *Config) { c.Cache.Backend = "redis" }, "cache.backend"},
		{"bad compression", func(c *Config) { c.Cache.Compression = "lz4" }, "cache.compression"},
		{"bad key", func(c *Config) { c.Cache.Key = "inode" }, "cache.key"},
		{"bad provider", func(c *Config) { c.Embedding.Provider = "remote" }, "embedding.provider"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, models.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			var ce *models.ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Errorf("field = %v, want %s", ce, tt.field)
			}
		})
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Cache.Dir = "/tmp/imgdedup-cache"
	cfg.Watch.Debounce = 3 * time.Second
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Cache.Dir != "/tmp/imgdedup-cache" {
		t.Errorf("loaded cache dir: got %s", loaded.Cache.Dir)
	}
	if loaded.Watch.Debounce != 3*time.Second {
		t.Errorf("loaded debounce: got %v", loaded.Watch.Debounce)
	}
}
