package types

// Version is the application version, overwritten at build time via ldflags
var Version = "dev"

// DefaultStage is assigned to jobs that do not declare a stage
const DefaultStage = "test"

// DefaultStages is the stage sequence used when a pipeline does not
// declare its own
var DefaultStages = []string{"build", "test", "deploy"}

// Predefined environment variable names injected into every job
const (
	EnvPipelineID = "CI_PIPELINE_ID"
	EnvJobName    = "CI_JOB_NAME"
	EnvJobStage   = "CI_JOB_STAGE"
	EnvProjectDir = "CI_PROJECT_DIR"
	EnvCommitSHA  = "CI_COMMIT_SHA"
	EnvCommitRef  = "CI_COMMIT_REF_NAME"
)
