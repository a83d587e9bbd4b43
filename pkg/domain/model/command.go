package model

import "time"

// CommandSpec describes one job script execution request
type CommandSpec struct {
	Script  []string      // shell lines, executed as a single sh -e session
	Dir     string        // working directory
	Env     []string      // full environment in KEY=VALUE form
	Timeout time.Duration // zero means no timeout
	LogPath string        // combined stdout/stderr destination
}

// CommandResult is the outcome of a job script execution
type CommandResult struct {
	ExitCode int
	Canceled bool
}
