package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/cli/config"
	controller "github.com/m-mizutani/stagehand/pkg/controller/http"
	executor "github.com/m-mizutani/stagehand/pkg/infra/exec"
	"github.com/m-mizutani/stagehand/pkg/infra/fetch"
	"github.com/m-mizutani/stagehand/pkg/infra/store"
	"github.com/m-mizutani/stagehand/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var (
		serverCfg   config.Server
		githubCfg   config.GitHub
		runnerCfg   config.Runner
		storageCfg  config.Storage
		tokenCfg    config.Token
		templateCfg config.Template
	)

	flags := append(serverCfg.Flags(), githubCfg.Flags()...)
	flags = append(flags, runnerCfg.Flags()...)
	flags = append(flags, storageCfg.Flags()...)
	flags = append(flags, tokenCfg.Flags()...)
	flags = append(flags, templateCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			if storageCfg.DBPath == "" {
				return goerr.New("--store is required in server mode")
			}

			logger.Info("Starting stagehand server",
				slog.String("addr", serverCfg.Addr),
				slog.String("pipeline_file", serverCfg.PipelineFile),
				slog.String("store", storageCfg.DBPath),
			)

			runStore, err := store.New(storageCfg.DBPath)
			if err != nil {
				return err
			}
			defer func() {
				if err := runStore.Close(); err != nil {
					logger.Warn("Failed to close run store", "error", err)
				}
			}()

			fetcher := fetch.New(filepath.Dir(serverCfg.PipelineFile),
				fetch.WithBaseURL(templateCfg.BaseURL))
			loader := usecase.NewLoader(fetcher)

			runnerOpts := []usecase.RunnerOption{
				usecase.WithStore(runStore),
				usecase.WithWorkDir(runnerCfg.WorkDir),
				usecase.WithConcurrency(runnerCfg.Concurrency),
				usecase.WithSkipStages(runnerCfg.SkipStages),
				usecase.WithArtifactDir(storageCfg.ArtifactDir),
			}
			if runnerCfg.LogDir != "" {
				runnerOpts = append(runnerOpts, usecase.WithLogDir(runnerCfg.LogDir))
			}
			runner := usecase.NewRunner(executor.New(), runnerOpts...)

			pipelineUC := usecase.NewPipeline(loader, runner, runStore, serverCfg.PipelineFile)

			serverOpts := []controller.Option{
				controller.WithAddr(serverCfg.Addr),
				controller.WithWebhookSecret(githubCfg.WebhookSecret),
			}
			if tokenCfg.Secret != "" {
				downloadUC := usecase.NewDownload(runStore, storageCfg.ArtifactDir,
					[]byte(tokenCfg.Secret), usecase.WithTokenTTL(tokenCfg.TTL))
				serverOpts = append(serverOpts, controller.WithDownload(downloadUC))
			}

			server, err := controller.NewServer(ctx, pipelineUC, serverOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			// Start server in goroutine
			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
