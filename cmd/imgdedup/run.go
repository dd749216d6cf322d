package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/imgdedup/internal/cli"
	"github.com/hyperjump/imgdedup/internal/config"
	"github.com/hyperjump/imgdedup/internal/dedup"
	"github.com/hyperjump/imgdedup/internal/models"
	"github.com/hyperjump/imgdedup/internal/output"
	"github.com/hyperjump/imgdedup/internal/scan"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// runFlags are the options of one deduplication pass.
type runFlags struct {
	target    string
	compare   []string
	self      bool
	batchSize int
	threshold float32
	cacheDir  string
	outputDir string
	recursive bool
	provider  string
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.target, "target", "t", "", "directory of images to deduplicate")
	fs.StringArrayVarP(&f.compare, "compare", "c", nil, "directory to compare against (repeatable)")
	fs.BoolVarP(&f.self, "self", "s", false, "deduplicate the target directory against itself")
	fs.IntVarP(&f.batchSize, "batch-size", "b", dedup.DefaultBatchSize, "images per embedding batch")
	fs.Float32VarP(&f.threshold, "threshold", "r", dedup.DefaultThreshold, "similarity above which an image is a duplicate")
	fs.StringVarP(&f.cacheDir, "cache-dir", "a", "", "embedding cache directory")
	fs.StringVarP(&f.outputDir, "output", "o", "", "copy kept images into this directory")
	fs.BoolVar(&f.recursive, "recursive", false, "scan directories recursively")
	fs.StringVar(&f.provider, "provider", "", "embedding provider: onnx or mock")
}

func (f *runFlags) validate() error {
	if f.target == "" {
		return &models.ConfigError{Field: "target", Reason: "--target is required"}
	}
	if f.self == (len(f.compare) > 0) {
		return &models.ConfigError{Field: "mode", Reason: "exactly one of --self or --compare is required"}
	}
	return nil
}

// apply folds explicitly set flags over cfg.
func (f *runFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("batch-size") {
		cfg.Dedupe.BatchSize = f.batchSize
	}
	if fs.Changed("threshold") {
		cfg.Dedupe.Threshold = f.threshold
	}
	if fs.Changed("cache-dir") {
		cfg.Cache.Dir = f.cacheDir
	}
	if fs.Changed("output") {
		cfg.Output.Dir = f.outputDir
	}
	if fs.Changed("recursive") {
		cfg.Dedupe.Recursive = f.recursive
	}
	if fs.Changed("provider") {
		cfg.Embedding.Provider = f.provider
	}
}

func (f *runFlags) request(ctx context.Context, opts scan.Options) (dedup.Request, error) {
	targets, err := scan.Dir(ctx, f.target, opts)
	if err != nil {
		return dedup.Request{}, fmt.Errorf("scan target: %w", err)
	}
	req := dedup.Request{Targets: targets, Self: f.self}
	if !f.self {
		req.Comparisons, err = scan.Dirs(ctx, f.compare, opts)
		if err != nil {
			return dedup.Request{}, err
		}
	}
	return req, nil
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deduplicate a directory once",
		Example: `  imgdedup run -t ./photos -s -o ./unique
  imgdedup run -t ./new -c ./archive -c ./backup -r 0.9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(g.format)
			if err != nil {
				return err
			}
			if err := f.validate(); err != nil {
				return err
			}
			cfg, logger, err := setup(g, func(c *config.Config) { f.apply(cmd.Flags(), c) })
			if err != nil {
				return err
			}
			defer logger.Sync()

			components, err := initializeComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			res, err := runOnce(cmd.Context(), f, cfg, components, logger)
			if err != nil {
				return err
			}
			return cli.WriteResult(cmd.OutOrStdout(), res, format)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

// runOnce scans, deduplicates and copies the kept images when an output
// directory is configured.
func runOnce(ctx context.Context, f *runFlags, cfg *config.Config, c *Components, logger *zap.Logger) (*models.Result, error) {
	req, err := f.request(ctx, c.ScanOptions)
	if err != nil {
		return nil, err
	}
	res, err := c.Orchestrator.Run(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrCacheCorrupt) {
			return nil, fmt.Errorf("%w (run `imgdedup cache clear` to rebuild)", err)
		}
		return nil, err
	}
	if cfg.Output.Dir != "" {
		copier := output.NewCopier(cfg.Output.Dir, output.WithLogger(logger))
		if _, err := copier.CopyAll(ctx, res.Keep); err != nil {
			return nil, err
		}
	}
	return res, nil
}
