package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
	"github.com/m-mizutani/stagehand/pkg/utils/async"
)

type pipelineUseCase struct {
	loader       *Loader
	runner       *Runner
	store        interfaces.RunStore
	pipelineFile string
}

// NewPipeline creates a PipelineUseCase serving triggered runs against a
// fixed pipeline configuration file
func NewPipeline(loader *Loader, runner *Runner, store interfaces.RunStore, pipelineFile string) interfaces.PipelineUseCase {
	return &pipelineUseCase{
		loader:       loader,
		runner:       runner,
		store:        store,
		pipelineFile: pipelineFile,
	}
}

// Trigger starts a pipeline run asynchronously and returns its ID
func (uc *pipelineUseCase) Trigger(ctx context.Context, info *model.TriggerInfo) (string, error) {
	logger := ctxlog.From(ctx)

	cfg, err := uc.loader.LoadFile(ctx, uc.pipelineFile)
	if err != nil {
		return "", err
	}

	prep, err := uc.runner.NewRun(ctx, cfg, info)
	if err != nil {
		return "", err
	}

	logger.Info("Triggered pipeline run",
		"run_id", prep.Run.ID,
		"source", info.Source,
		"ref", info.Ref,
		"actor", info.Actor,
	)

	async.Dispatch(ctx, "pipeline run", func(ctx context.Context) error {
		result, err := uc.runner.Execute(ctx, prep)
		if err != nil {
			return err
		}
		if result.Failed() {
			ctxlog.From(ctx).Warn("Triggered pipeline run failed", "run_id", prep.Run.ID)
		}
		return nil
	})

	return prep.Run.ID, nil
}

// GetRun returns a run with its job records
func (uc *pipelineUseCase) GetRun(ctx context.Context, runID string) (*model.PipelineRun, []*model.JobRecord, error) {
	run, err := uc.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	jobs, err := uc.store.ListJobs(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	return run, jobs, nil
}

// ListRuns returns non-failed runs for a source, newest first. The
// initiatedAfter filter is an RFC 3339 timestamp; empty means no filter.
func (uc *pipelineUseCase) ListRuns(ctx context.Context, source string, initiatedAfter string) ([]*model.PipelineRun, error) {
	var after time.Time
	if initiatedAfter != "" {
		parsed, err := time.Parse(time.RFC3339, initiatedAfter)
		if err != nil {
			return nil, goerr.Wrap(types.ErrInvalidArgument, "invalid initiated_after timestamp",
				goerr.V("value", initiatedAfter))
		}
		after = parsed
	}

	return uc.store.ListRuns(ctx, source, after)
}
