package config

import "github.com/urfave/cli/v3"

// Storage holds run store and artifact storage configuration
type Storage struct {
	DBPath      string
	ArtifactDir string
}

// Flags returns CLI flags for storage configuration
func (c *Storage) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Path of the SQLite run store; runs are not recorded when empty",
			Destination: &c.DBPath,
			Sources:     cli.EnvVars("STAGEHAND_STORE"),
		},
		&cli.StringFlag{
			Name:        "artifact-dir",
			Usage:       "Directory artifact zips are written under",
			Value:       "artifacts",
			Destination: &c.ArtifactDir,
			Sources:     cli.EnvVars("STAGEHAND_ARTIFACT_DIR"),
		},
	}
}
