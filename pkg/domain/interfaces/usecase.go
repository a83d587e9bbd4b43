package interfaces

import (
	"context"

	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

// LintUseCase validates pipeline configurations
type LintUseCase interface {
	// Lint loads the configuration, resolves includes, and returns all
	// validation findings
	Lint(ctx context.Context, path string) ([]model.Finding, error)
}

// PipelineUseCase defines pipeline run operations exposed to controllers
type PipelineUseCase interface {
	// Trigger starts a pipeline run asynchronously and returns its ID
	Trigger(ctx context.Context, info *model.TriggerInfo) (string, error)

	// GetRun returns a run with its job records
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, []*model.JobRecord, error)

	// ListRuns returns non-failed runs for a source, newest first
	ListRuns(ctx context.Context, source string, initiatedAfter string) ([]*model.PipelineRun, error)
}

// DownloadUseCase authorizes and redeems artifact downloads
type DownloadUseCase interface {
	// IssueToken creates a download record and returns a signed token for
	// the artifact produced by the given job
	IssueToken(ctx context.Context, runID, jobName string) (string, error)

	// Redeem validates a token and returns the artifact with the absolute
	// path of its zip file
	Redeem(ctx context.Context, token string) (*model.Artifact, string, error)
}
