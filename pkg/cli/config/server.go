package config

import "github.com/urfave/cli/v3"

// Server holds server configuration
type Server struct {
	Addr         string
	PipelineFile string
}

// Flags returns CLI flags for server configuration
func (c *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Server address",
			Value:       "localhost:8080",
			Destination: &c.Addr,
			Sources:     cli.EnvVars("STAGEHAND_ADDR"),
		},
		&cli.StringFlag{
			Name:        "pipeline-file",
			Usage:       "Pipeline configuration executed by triggered runs",
			Value:       ".stagehand-ci.yml",
			Destination: &c.PipelineFile,
			Sources:     cli.EnvVars("STAGEHAND_PIPELINE_FILE"),
		},
	}
}
