package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/cli/config"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
	"github.com/m-mizutani/stagehand/pkg/infra/fetch"
	"github.com/m-mizutani/stagehand/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdLint() *cli.Command {
	var templateCfg config.Template

	return &cli.Command{
		Name:      "lint",
		Aliases:   []string{"l"},
		Usage:     "Validate a pipeline configuration",
		ArgsUsage: "<pipeline file>",
		Flags:     templateCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return goerr.New("pipeline file argument is required")
			}

			fetcher := fetch.New(filepath.Dir(path), fetch.WithBaseURL(templateCfg.BaseURL))
			lintUC := usecase.NewLint(usecase.NewLoader(fetcher))

			findings, err := lintUC.Lint(ctx, path)
			if err != nil {
				return err
			}

			for _, finding := range findings {
				fmt.Println(finding.String())
			}

			if model.HasError(findings) {
				return goerr.New("pipeline configuration is invalid",
					goerr.V("path", path), goerr.V("findings", len(findings)))
			}

			fmt.Printf("OK: %s\n", path)
			return nil
		},
	}
}
