package config

import "github.com/urfave/cli/v3"

// Template holds remote include template host configuration
type Template struct {
	BaseURL string
}

// Flags returns CLI flags for template configuration
func (c *Template) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "template-base-url",
			Usage:       "Base URL of the template host for project includes",
			Destination: &c.BaseURL,
			Sources:     cli.EnvVars("STAGEHAND_TEMPLATE_BASE_URL"),
		},
	}
}
