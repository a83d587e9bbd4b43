package config

import (
	"time"

	"github.com/urfave/cli/v3"
)

// Token holds artifact download token configuration
type Token struct {
	Secret string
	TTL    time.Duration
}

// Flags returns CLI flags for token configuration
func (c *Token) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "token-secret",
			Usage:       "Signing secret for artifact download tokens; downloads are disabled when empty",
			Destination: &c.Secret,
			Sources:     cli.EnvVars("STAGEHAND_TOKEN_SECRET"),
		},
		&cli.DurationFlag{
			Name:        "token-ttl",
			Usage:       "Validity period of download tokens",
			Value:       24 * time.Hour,
			Destination: &c.TTL,
			Sources:     cli.EnvVars("STAGEHAND_TOKEN_TTL"),
		},
	}
}
