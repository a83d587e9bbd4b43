package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/cli/config"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
	executor "github.com/m-mizutani/stagehand/pkg/infra/exec"
	"github.com/m-mizutani/stagehand/pkg/infra/fetch"
	"github.com/m-mizutani/stagehand/pkg/infra/store"
	"github.com/m-mizutani/stagehand/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdRun() *cli.Command {
	var (
		runnerCfg   config.Runner
		storageCfg  config.Storage
		templateCfg config.Template
		vars        []string
	)

	flags := append(runnerCfg.Flags(), storageCfg.Flags()...)
	flags = append(flags, templateCfg.Flags()...)
	flags = append(flags, &cli.StringSliceFlag{
		Name:        "var",
		Usage:       "Pipeline variable override in KEY=VALUE form (repeatable)",
		Destination: &vars,
	})

	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Execute a pipeline locally",
		ArgsUsage: "<pipeline file>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := c.Args().First()
			if path == "" {
				return goerr.New("pipeline file argument is required")
			}

			overrides, err := parseVariables(vars)
			if err != nil {
				return err
			}

			fetcher := fetch.New(filepath.Dir(path), fetch.WithBaseURL(templateCfg.BaseURL))
			cfg, err := usecase.NewLoader(fetcher).LoadFile(ctx, path)
			if err != nil {
				return err
			}

			opts := []usecase.RunnerOption{
				usecase.WithWorkDir(runnerCfg.WorkDir),
				usecase.WithConcurrency(runnerCfg.Concurrency),
				usecase.WithSkipStages(runnerCfg.SkipStages),
				usecase.WithArtifactDir(storageCfg.ArtifactDir),
			}
			if runnerCfg.LogDir != "" {
				opts = append(opts, usecase.WithLogDir(runnerCfg.LogDir))
			}

			var runStore interfaces.RunStore
			if storageCfg.DBPath != "" {
				runStore, err = store.New(storageCfg.DBPath)
				if err != nil {
					return err
				}
				defer func() {
					if err := runStore.Close(); err != nil {
						logger.Warn("Failed to close run store", "error", err)
					}
				}()
				opts = append(opts, usecase.WithStore(runStore))
			}

			runner := usecase.NewRunner(executor.New(), opts...)
			result, err := runner.Run(ctx, cfg, &model.TriggerInfo{
				Source:    path,
				Actor:     "cli",
				Variables: overrides,
			})
			if err != nil {
				return err
			}

			for _, job := range result.Jobs {
				fmt.Printf("%-10s %-20s %s\n", job.Status, job.Stage, job.Name)
			}
			fmt.Printf("pipeline %s: %s\n", result.Run.ID, result.Run.Status)

			if result.Run.Status != model.StatusSuccess {
				return goerr.New("pipeline did not succeed",
					goerr.V("run_id", result.Run.ID), goerr.V("status", result.Run.Status))
			}
			return nil
		},
	}
}

func parseVariables(pairs []string) (model.Variables, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	vars := model.Variables{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, goerr.New("variable must be in KEY=VALUE form", goerr.V("value", pair))
		}
		vars[name] = value
	}
	return vars, nil
}
