package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/imgdedup/internal/config"
	"github.com/hyperjump/imgdedup/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var host string
	var port int
	var cacheDir, provider string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, logger, err := setup(g, func(c *config.Config) {
				if flags.Changed("host") {
					c.Server.Host = host
				}
				if flags.Changed("port") {
					c.Server.Port = port
				}
				if flags.Changed("cache-dir") {
					c.Cache.Dir = cacheDir
				}
				if flags.Changed("provider") {
					c.Embedding.Provider = provider
				}
			})
			if err != nil {
				return err
			}
			defer logger.Sync()

			components, err := initializeComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			srv := server.NewServer(components.Orchestrator, components.Cache, components.ScanOptions, &cfg.Server, logger)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-sigCtx.Done():
			}

			logger.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("shutdown", zap.Error(err))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost", "listen host")
	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	cmd.Flags().StringVarP(&cacheDir, "cache-dir", "a", "", "embedding cache directory")
	cmd.Flags().StringVar(&provider, "provider", "", "embedding provider: onnx or mock")
	return cmd
}
