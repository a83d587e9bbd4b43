package exec

import (
	"context"
	"errors"
	"io"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

type shellRunner struct {
	shell string
}

// Option is a functional option for runner configuration
type Option func(*shellRunner)

// WithShell overrides the shell binary (default: sh)
func WithShell(shell string) Option {
	return func(r *shellRunner) {
		r.shell = shell
	}
}

// New creates a CommandRunner that executes job scripts through a shell.
// The script lines are joined and run as one `sh -e` session, so a
// non-zero exit from any line fails the job.
func New(opts ...Option) interfaces.CommandRunner {
	r := &shellRunner{shell: "sh"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one job script
func (r *shellRunner) Run(ctx context.Context, spec *model.CommandSpec) (*model.CommandResult, error) {
	logger := ctxlog.From(ctx)

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	script := strings.Join(spec.Script, "\n")
	cmd := osexec.CommandContext(ctx, r.shell, "-e", "-c", script)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	var output io.Writer = io.Discard
	if spec.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create log directory", goerr.V("path", spec.LogPath))
		}
		logFile, err := os.OpenFile(spec.LogPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create job log file", goerr.V("path", spec.LogPath))
		}
		defer logFile.Close()
		output = logFile
	}
	cmd.Stdout = output
	cmd.Stderr = output

	logger.Debug("Executing job script",
		"dir", spec.Dir,
		"lines", len(spec.Script),
		"log_path", spec.LogPath,
	)

	err := cmd.Run()
	if err == nil {
		return &model.CommandResult{ExitCode: 0}, nil
	}

	if ctx.Err() != nil {
		return &model.CommandResult{ExitCode: -1, Canceled: true}, nil
	}

	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		return &model.CommandResult{ExitCode: exitErr.ExitCode()}, nil
	}

	return nil, goerr.Wrap(err, "failed to start job script", goerr.V("shell", r.shell))
}
