package main

import (
	"fmt"

	"github.com/hyperjump/imgdedup/internal/cli"
	"github.com/hyperjump/imgdedup/internal/config"
	"github.com/spf13/cobra"
)

func newCacheCmd(g *globalFlags) *cobra.Command {
	var cacheDir string
	override := func(cmd *cobra.Command) func(*config.Config) {
		return func(c *config.Config) {
			if cmd.Flags().Changed("cache-dir") {
				c.Cache.Dir = cacheDir
			}
		}
	}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the embedding cache",
	}
	cmd.PersistentFlags().StringVarP(&cacheDir, "cache-dir", "a", "", "embedding cache directory")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show cache entries and disk usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(g.format)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(g, override(cmd))
			if err != nil {
				return err
			}
			defer logger.Sync()
			c, err := initializeCache(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteCacheStatus(cmd.OutOrStdout(), st, format)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the cache artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(g, override(cmd))
			if err != nil {
				return err
			}
			defer logger.Sync()
			c, err := initializeCache(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Clear(); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s\n", cfg.Cache.Dir)
			return nil
		},
	}

	cmd.AddCommand(status, clearCmd)
	return cmd
}
