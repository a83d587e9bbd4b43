package config

import "github.com/urfave/cli/v3"

// Runner holds job execution configuration
type Runner struct {
	WorkDir     string
	LogDir      string
	Concurrency int
	SkipStages  []string
}

// Flags returns CLI flags for runner configuration
func (c *Runner) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "workdir",
			Usage:       "Directory job scripts run in",
			Value:       ".",
			Destination: &c.WorkDir,
			Sources:     cli.EnvVars("STAGEHAND_WORKDIR"),
		},
		&cli.StringFlag{
			Name:        "log-dir",
			Usage:       "Directory job logs are written under",
			Destination: &c.LogDir,
			Sources:     cli.EnvVars("STAGEHAND_LOG_DIR"),
		},
		&cli.IntFlag{
			Name:        "concurrency",
			Usage:       "Maximum number of jobs running at once per stage",
			Value:       2,
			Destination: &c.Concurrency,
			Sources:     cli.EnvVars("STAGEHAND_CONCURRENCY"),
		},
		&cli.StringSliceFlag{
			Name:        "skip-stage",
			Usage:       "Stage to skip (repeatable)",
			Destination: &c.SkipStages,
			Sources:     cli.EnvVars("STAGEHAND_SKIP_STAGES"),
		},
	}
}
