package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperjump/imgdedup/internal/cli"
	"github.com/hyperjump/imgdedup/internal/config"
	"github.com/hyperjump/imgdedup/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Deduplicate, then re-run whenever the target directory changes",
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

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			pass := func() {
				res, err := runOnce(ctx, f, cfg, components, logger)
				if err != nil {
					logger.Error("deduplication failed", zap.Error(err))
					return
				}
				if err := cli.WriteResult(out, res, format); err != nil {
					logger.Warn("write report failed", zap.Error(err))
				}
			}
			pass()

			w := watcher.NewWatcher([]string{f.target}, cfg.Dedupe.Extensions, cfg.Dedupe.Recursive,
				func(changed []string) {
					logger.Info("target changed", zap.Int("files", len(changed)))
					pass()
				},
				watcher.WithDebounce(cfg.Watch.Debounce),
				watcher.WithIgnore(cfg.Output.Dir, cfg.Cache.Dir),
				watcher.WithLogger(logger),
			)
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()
			logger.Info("watching", zap.Strings("directories", w.Directories()), zap.Duration("debounce", cfg.Watch.Debounce))
			fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", f.target)

			<-ctx.Done()
			logger.Info("Shutting down...")
			return nil
		},
	}
	f.register(cmd.Flags())
	return cmd
}
