package config

import (
	"runtime"
	"time"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Dedupe.Threshold == 0 {
		cfg.Dedupe.Threshold = 0.95
	}
	if cfg.Dedupe.BatchSize == 0 {
		cfg.Dedupe.BatchSize = 16
	}
	if cfg.Dedupe.ChunkSize == 0 {
		cfg.Dedupe.ChunkSize = 10000
	}
	if cfg.Dedupe.Workers == 0 {
		cfg.Dedupe.Workers = runtime.NumCPU()
	}
	if cfg.Dedupe.Extensions == nil {
		cfg.Dedupe.Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "./cache"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "files"
	}
	if cfg.Cache.Compression == "" {
		cfg.Cache.Compression = "none"
	}
	if cfg.Cache.Key == "" {
		cfg.Cache.Key = "content"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "./assets/mobilenetv4_conv_medium.e500_r256_in1k_features.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1280
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 256
	}
	if cfg.Embedding.InputName == "" {
		cfg.Embedding.InputName = "input"
	}
	if cfg.Embedding.OutputName == "" {
		cfg.Embedding.OutputName = "output"
	}
	if cfg.Embedding.IntraThreads == 0 {
		cfg.Embedding.IntraThreads = 8
	}
	if cfg.Embedding.MemoSize == 0 {
		cfg.Embedding.MemoSize = 4096
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
