package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/cli/config"
	"github.com/m-mizutani/stagehand/pkg/infra/store"
	"github.com/urfave/cli/v3"
)

func cmdRuns() *cli.Command {
	var storageCfg config.Storage

	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect recorded pipeline runs",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List non-failed runs for a source",
				ArgsUsage: "<source>",
				Flags: append(storageCfg.Flags(), &cli.StringFlag{
					Name:  "since",
					Usage: "Only show runs initiated after this RFC 3339 timestamp",
				}),
				Action: func(ctx context.Context, c *cli.Command) error {
					source := c.Args().First()
					if source == "" {
						return goerr.New("source argument is required")
					}
					if storageCfg.DBPath == "" {
						return goerr.New("--store is required")
					}

					var since time.Time
					if v := c.String("since"); v != "" {
						parsed, err := time.Parse(time.RFC3339, v)
						if err != nil {
							return goerr.Wrap(err, "invalid --since timestamp", goerr.V("value", v))
						}
						since = parsed
					}

					runStore, err := store.New(storageCfg.DBPath)
					if err != nil {
						return err
					}
					defer runStore.Close()

					runs, err := runStore.ListRuns(ctx, source, since)
					if err != nil {
						return err
					}

					for _, run := range runs {
						done := "-"
						if run.DateDone != nil {
							done = run.DateDone.Format(time.RFC3339)
						}
						fmt.Printf("%s  %-9s  initiated=%s  done=%s\n",
							run.ID, run.Status, run.Initiated.Format(time.RFC3339), done)
					}
					return nil
				},
			},
		},
	}
}
