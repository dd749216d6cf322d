// Package main is the imgdedup CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/imgdedup/internal/cache"
	"github.com/hyperjump/imgdedup/internal/config"
	"github.com/hyperjump/imgdedup/internal/dedup"
	"github.com/hyperjump/imgdedup/internal/embedding"
	"github.com/hyperjump/imgdedup/internal/fileid"
	"github.com/hyperjump/imgdedup/internal/scan"
	"github.com/hyperjump/imgdedup/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/imgdedup/config.yaml"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
	format     string
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// When the default path does not exist either, built-in defaults are returned with
// an empty resolved path.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "imgdedup",
		Short:         "Remove near-duplicate images using learned embeddings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&g.format, "output-format", "text", "output format: text or json")

	root.AddCommand(
		newRunCmd(g),
		newWatchCmd(g),
		newServeCmd(g),
		newCacheCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "imgdedup version %s\n", version)
			},
		},
	)
	return root
}

// setup loads and validates the config after apply has folded in flag
// overrides, then builds the logger.
func setup(g *globalFlags, apply func(*config.Config)) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(g.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	debugMode := cfg.Debug || g.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.Bool("debug", debugMode),
	)
	return cfg, logger, nil
}

// Components holds initialized services.
type Components struct {
	Cache        *cache.Cache
	Provider     embedding.Provider
	Orchestrator *dedup.Orchestrator
	ScanOptions  scan.Options
}

// Close releases the provider and cache backend.
func (c *Components) Close() {
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}

func initializeCache(cfg *config.Config, logger *zap.Logger) (*cache.Cache, error) {
	backend, err := cache.NewBackend(cache.BackendType(cfg.Cache.Backend), cfg.Cache.Dir, cache.Compression(cfg.Cache.Compression))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return cache.New(backend, cache.WithLogger(logger)), nil
}

func initializeProvider(cfg *config.Config, keyer *fileid.Keyer) (embedding.Provider, error) {
	var provider embedding.Provider
	switch cfg.Embedding.Provider {
	case "mock":
		provider = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		onnx, err := embedding.NewONNXProvider(embedding.ONNXConfig{
			ModelPath:    cfg.Embedding.ModelPath,
			LibraryPath:  cfg.Embedding.LibraryPath,
			InputName:    cfg.Embedding.InputName,
			OutputName:   cfg.Embedding.OutputName,
			Dimensions:   cfg.Embedding.Dimensions,
			ImageSize:    cfg.Embedding.ImageSize,
			BatchSize:    cfg.Dedupe.BatchSize,
			IntraThreads: cfg.Embedding.IntraThreads,
			Workers:      cfg.Dedupe.Workers,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
		}
		provider = onnx
	}
	memo, err := embedding.WrapMemo(provider, cfg.Embedding.MemoSize, keyer.ID)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}
	return memo, nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	keyer, err := fileid.NewKeyer(fileid.KeyMode(cfg.Cache.Key))
	if err != nil {
		return nil, err
	}
	c, err := initializeCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	provider, err := initializeProvider(cfg, keyer)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	orch, err := dedup.New(c, provider, keyer,
		dedup.WithThreshold(cfg.Dedupe.Threshold),
		dedup.WithBatchSize(cfg.Dedupe.BatchSize),
		dedup.WithChunkSize(cfg.Dedupe.ChunkSize),
		dedup.WithWorkers(cfg.Dedupe.Workers),
		dedup.WithLogger(logger),
	)
	if err != nil {
		_ = provider.Close()
		_ = c.Close()
		return nil, err
	}
	logger.Info("components initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("cache_dir", cfg.Cache.Dir),
		zap.String("cache_key", cfg.Cache.Key),
	)
	return &Components{
		Cache:        c,
		Provider:     provider,
		Orchestrator: orch,
		ScanOptions:  scan.Options{Recursive: cfg.Dedupe.Recursive, Extensions: cfg.Dedupe.Extensions},
	}, nil
}
