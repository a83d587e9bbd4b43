package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

// IncludeFetcher resolves include references to raw YAML documents
type IncludeFetcher interface {
	// Fetch returns the documents for one include reference, in file order
	Fetch(ctx context.Context, ref *model.IncludeRef) ([][]byte, error)
}

// CommandRunner executes one job script
type CommandRunner interface {
	Run(ctx context.Context, spec *model.CommandSpec) (*model.CommandResult, error)
}

// RunStore persists pipeline runs, job records, artifacts, and download
// authorizations
type RunStore interface {
	// CreateRun inserts a run with its pending job rows
	CreateRun(ctx context.Context, run *model.PipelineRun, jobs []*model.JobRecord) error

	// UpdateRunStatus transitions a run; doneAt is set for terminal states
	UpdateRunStatus(ctx context.Context, runID string, status model.Status, doneAt *time.Time) error

	// UpdateJob updates one job row of a run
	UpdateJob(ctx context.Context, job *model.JobRecord) error

	// GetRun returns a run by ID
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)

	// ListJobs returns the job rows of a run in insertion order
	ListJobs(ctx context.Context, runID string) ([]*model.JobRecord, error)

	// ListRuns returns non-failed runs for a source initiated after the
	// given time, newest first
	ListRuns(ctx context.Context, source string, initiatedAfter time.Time) ([]*model.PipelineRun, error)

	// RecordArtifact inserts an artifact row
	RecordArtifact(ctx context.Context, artifact *model.Artifact) error

	// GetArtifact returns an artifact by ID
	GetArtifact(ctx context.Context, artifactID string) (*model.Artifact, error)

	// FindArtifact returns the artifact produced by a job of a run
	FindArtifact(ctx context.Context, runID, jobName string) (*model.Artifact, error)

	// ListArtifactFilenames returns the artifact filenames of a run
	ListArtifactFilenames(ctx context.Context, runID string) ([]string, error)

	// CreateDownload records an issued download token
	CreateDownload(ctx context.Context, token, artifactID string) error

	// GetDownload returns the download record for a token
	GetDownload(ctx context.Context, token string) (*model.DownloadRecord, error)

	// Close releases the underlying database handle
	Close() error
}
