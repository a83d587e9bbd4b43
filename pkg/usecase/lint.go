package usecase

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

type lintUseCase struct {
	loader *Loader
}

// NewLint creates a new LintUseCase
func NewLint(loader *Loader) interfaces.LintUseCase {
	return &lintUseCase{loader: loader}
}

// Lint loads the configuration, resolves includes, and returns all
// validation findings. Load failures (malformed YAML, unresolvable
// includes) are reported as error findings rather than returned as
// errors, so callers can present them uniformly.
func (uc *lintUseCase) Lint(ctx context.Context, path string) ([]model.Finding, error) {
	logger := ctxlog.From(ctx)

	cfg, err := uc.loader.LoadFile(ctx, path)
	if err != nil {
		return []model.Finding{{
			Severity: model.SeverityError,
			Message:  err.Error(),
		}}, nil
	}

	findings := cfg.Validate()

	logger.Info("Linted pipeline configuration",
		"path", path,
		"jobs", len(cfg.VisibleJobs()),
		"findings", len(findings),
	)

	return findings, nil
}
