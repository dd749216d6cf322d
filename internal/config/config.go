// Package config provides configuration loading and structs for imgdedup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Output    OutputConfig    `yaml:"output"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
}

// DedupeConfig holds matching and scanning settings.
type DedupeConfig struct {
	Threshold  float32  `yaml:"threshold"`
	BatchSize  int      `yaml:"batch_size"`
	ChunkSize  int      `yaml:"chunk_size"`
	Workers    int      `yaml:"workers"`
	Recursive  bool     `yaml:"recursive"`
	Extensions []string `yaml:"extensions"`
}

// CacheConfig selects where and how embeddings are persisted.
type CacheConfig struct {
	Dir         string `yaml:"dir"`
	Backend     string `yaml:"backend"`
	Compression string `yaml:"compression"`
	Key         string `yaml:"key"`
}

// EmbeddingConfig holds feature-extractor settings.
type EmbeddingConfig struct {
	Provider     string `yaml:"provider"`
	ModelPath    string `yaml:"model_path"`
	LibraryPath  string `yaml:"library_path"`
	Dimensions   int    `yaml:"dimensions"`
	ImageSize    int    `yaml:"image_size"`
	InputName    string `yaml:"input_name"`
	OutputName   string `yaml:"output_name"`
	IntraThreads int    `yaml:"intra_threads"`
	MemoSize     int    `yaml:"memo_size"`
}

// OutputConfig holds where kept images are copied. Empty disables copying.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Cache.Dir = expandPath(cfg.Cache.Dir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Embedding.LibraryPath = expandPath(cfg.Embedding.LibraryPath, configDir)
	cfg.Output.Dir = expandPath(cfg.Output.Dir, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
