package usecase

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
	"golang.org/x/sync/errgroup"
)

// Runner executes pipeline plans: stages sequentially, jobs within a
// stage concurrently up to the configured limit
type Runner struct {
	cmd         interfaces.CommandRunner
	store       interfaces.RunStore
	workDir     string
	logDir      string
	artifactDir string
	concurrency int
	skipStages  map[string]bool
}

// RunnerOption is a functional option for Runner configuration
type RunnerOption func(*Runner)

// WithStore enables run recording
func WithStore(store interfaces.RunStore) RunnerOption {
	return func(r *Runner) {
		r.store = store
	}
}

// WithWorkDir sets the directory job scripts run in (default: cwd)
func WithWorkDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.workDir = dir
	}
}

// WithLogDir sets the directory job logs are written under
func WithLogDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.logDir = dir
	}
}

// WithArtifactDir sets the directory artifact zips are written under
func WithArtifactDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.artifactDir = dir
	}
}

// WithConcurrency bounds the number of jobs running at once per stage
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSkipStages excludes the named stages from execution
func WithSkipStages(stages []string) RunnerOption {
	return func(r *Runner) {
		for _, stage := range stages {
			r.skipStages[stage] = true
		}
	}
}

// NewRunner creates a pipeline runner
func NewRunner(cmd interfaces.CommandRunner, opts ...RunnerOption) *Runner {
	r := &Runner{
		cmd:         cmd,
		workDir:     ".",
		logDir:      filepath.Join(os.TempDir(), "stagehand-logs"),
		artifactDir: filepath.Join(os.TempDir(), "stagehand-artifacts"),
		concurrency: 2,
		skipStages:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PreparedRun bundles a planned pipeline with its pending records
type PreparedRun struct {
	Config  *model.Config
	Trigger *model.TriggerInfo
	Plan    *model.Plan
	Run     *model.PipelineRun
	Jobs    []*model.JobRecord
}

// NewRun plans a pipeline and persists its pending run and job rows
func (r *Runner) NewRun(ctx context.Context, cfg *model.Config, trigger *model.TriggerInfo) (*PreparedRun, error) {
	if findings := cfg.Validate(); model.HasError(findings) {
		return nil, goerr.Wrap(types.ErrInvalidConfig, findings[0].Message)
	}

	plan, err := cfg.BuildPlan()
	if err != nil {
		return nil, err
	}

	run := &model.PipelineRun{
		ID:        uuid.NewString(),
		Source:    trigger.Source,
		Ref:       trigger.Ref,
		Status:    model.StatusPending,
		Initiated: time.Now().UTC(),
	}

	var jobs []*model.JobRecord
	for _, stage := range plan.Stages {
		for _, pj := range stage.Jobs {
			jobs = append(jobs, &model.JobRecord{
				RunID:  run.ID,
				Name:   pj.Name,
				Stage:  stage.Name,
				Status: model.StatusPending,
			})
		}
	}

	if r.store != nil {
		if err := r.store.CreateRun(ctx, run, jobs); err != nil {
			return nil, err
		}
	}

	return &PreparedRun{
		Config:  cfg,
		Trigger: trigger,
		Plan:    plan,
		Run:     run,
		Jobs:    jobs,
	}, nil
}

// Run plans and executes a pipeline in one call
func (r *Runner) Run(ctx context.Context, cfg *model.Config, trigger *model.TriggerInfo) (*model.RunResult, error) {
	prep, err := r.NewRun(ctx, cfg, trigger)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, prep)
}

// Execute runs a prepared pipeline to completion
func (r *Runner) Execute(ctx context.Context, prep *PreparedRun) (*model.RunResult, error) {
	logger := ctxlog.From(ctx)

	records := make(map[string]*model.JobRecord, len(prep.Jobs))
	for _, job := range prep.Jobs {
		records[job.Name] = job
	}

	baseVars := prep.Config.ResolveVariables(prep.Trigger.Variables)

	prep.Run.Status = model.StatusRunning
	r.storeRunStatus(ctx, prep.Run.ID, model.StatusRunning, nil)

	logger.Info("Starting pipeline run",
		"run_id", prep.Run.ID,
		"source", prep.Trigger.Source,
		"stages", len(prep.Plan.Stages),
		"jobs", prep.Plan.JobCount(),
	)

	state := &runState{statuses: map[string]model.Status{}}
	pipelineFailed := false

	for _, stage := range prep.Plan.Stages {
		if r.skipStages[stage.Name] {
			logger.Info("Skipping stage", "run_id", prep.Run.ID, "stage", stage.Name)
			r.markStage(ctx, stage, records, state, model.StatusSkipped)
			continue
		}
		if pipelineFailed || ctx.Err() != nil {
			status := model.StatusSkipped
			if ctx.Err() != nil {
				status = model.StatusCanceled
			}
			r.markStage(ctx, stage, records, state, status)
			continue
		}

		if r.executeStage(ctx, prep, stage, records, state, baseVars) {
			pipelineFailed = true
		}
	}

	now := time.Now().UTC()
	final := model.StatusSuccess
	switch {
	case ctx.Err() != nil:
		final = model.StatusCanceled
	case pipelineFailed:
		final = model.StatusFailed
	}
	prep.Run.Status = final
	prep.Run.DateDone = &now
	r.storeRunStatus(ctx, prep.Run.ID, final, &now)

	logger.Info("Pipeline run finished",
		"run_id", prep.Run.ID,
		"status", final,
		"duration", now.Sub(prep.Run.Initiated).String(),
	)

	return &model.RunResult{
		Run:       prep.Run,
		Jobs:      prep.Jobs,
		Artifacts: state.artifacts,
	}, nil
}

// runState tracks job outcomes shared between stage goroutines
type runState struct {
	mu        sync.Mutex
	statuses  map[string]model.Status
	artifacts []*model.Artifact
}

func (s *runState) setStatus(name string, status model.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[name] = status
}

func (s *runState) status(name string) model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[name]
}

func (s *runState) addArtifact(artifact *model.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, artifact)
}

// executeStage runs all jobs of one stage and reports whether the stage
// failed the pipeline
func (r *Runner) executeStage(ctx context.Context, prep *PreparedRun, stage model.PlanStage,
	records map[string]*model.JobRecord, state *runState, baseVars map[string]string) bool {

	logger := ctxlog.From(ctx)
	logger.Info("Starting stage", "run_id", prep.Run.ID, "stage", stage.Name)

	done := make(map[string]chan struct{}, len(stage.Jobs))
	for _, pj := range stage.Jobs {
		done[pj.Name] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	stageFailed := false
	var failMu sync.Mutex

	for _, pj := range stage.Jobs {
		g.Go(func() error {
			defer close(done[pj.Name])

			for _, need := range pj.SameStageNeeds {
				select {
				case <-done[need]:
				case <-ctx.Done():
				}
			}

			rec := records[pj.Name]

			if ctx.Err() != nil {
				r.finishJob(ctx, rec, model.StatusCanceled, -1, state)
				return nil
			}

			if blocked := r.blockedBy(prep.Config, state, pj); blocked != "" {
				logger.Info("Skipping job: dependency did not succeed",
					"run_id", prep.Run.ID, "job", pj.Name, "needs", blocked)
				r.finishJob(ctx, rec, model.StatusSkipped, 0, state)
				return nil
			}

			failed := r.executeJob(ctx, prep, stage.Name, pj, rec, state, baseVars)
			if failed && !pj.Spec.AllowFailure {
				failMu.Lock()
				stageFailed = true
				failMu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait() // job errors are recorded per job, never propagated
	return stageFailed
}

// blockedBy returns the name of a same-stage dependency that prevents the
// job from running, or an empty string
func (r *Runner) blockedBy(cfg *model.Config, state *runState, pj model.PlannedJob) string {
	for _, need := range pj.SameStageNeeds {
		switch state.status(need) {
		case model.StatusSuccess:
		case model.StatusFailed:
			if !cfg.Jobs[need].AllowFailure {
				return need
			}
		default:
			return need
		}
	}
	return ""
}

// executeJob runs one job and reports whether it failed
func (r *Runner) executeJob(ctx context.Context, prep *PreparedRun, stageName string,
	pj model.PlannedJob, rec *model.JobRecord, state *runState, baseVars map[string]string) bool {

	logger := ctxlog.From(ctx)

	started := time.Now().UTC()
	rec.Status = model.StatusRunning
	rec.StartedAt = &started
	rec.LogPath = filepath.Join(r.logDir, prep.Run.ID, sanitizeName(pj.Name)+".log")
	state.setStatus(pj.Name, model.StatusRunning)
	r.storeJob(ctx, rec)

	logger.Info("Starting job",
		"run_id", prep.Run.ID,
		"job", pj.Name,
		"stage", stageName,
	)

	spec := &model.CommandSpec{
		Script:  pj.Spec.Script,
		Dir:     r.workDir,
		Env:     r.jobEnv(prep, stageName, pj, baseVars),
		Timeout: time.Duration(pj.Spec.Timeout),
		LogPath: rec.LogPath,
	}

	result, err := r.cmd.Run(ctx, spec)
	if err != nil {
		logger.Error("Job execution failed", "run_id", prep.Run.ID, "job", pj.Name, "error", err)
		r.finishJob(ctx, rec, model.StatusFailed, -1, state)
		return true
	}

	switch {
	case result.Canceled:
		r.finishJob(ctx, rec, model.StatusCanceled, result.ExitCode, state)
		return true
	case result.ExitCode != 0:
		logger.Warn("Job failed",
			"run_id", prep.Run.ID,
			"job", pj.Name,
			"exit_code", result.ExitCode,
			"allow_failure", pj.Spec.AllowFailure,
		)
		r.finishJob(ctx, rec, model.StatusFailed, result.ExitCode, state)
		return true
	}

	r.finishJob(ctx, rec, model.StatusSuccess, 0, state)
	logger.Info("Job succeeded", "run_id", prep.Run.ID, "job", pj.Name)

	if pj.Spec.Artifacts != nil && len(pj.Spec.Artifacts.Paths) > 0 {
		artifact, err := r.collectArtifact(ctx, prep.Run.ID, pj.Name, pj.Spec.Artifacts)
		if err != nil {
			logger.Warn("Failed to collect artifacts",
				"run_id", prep.Run.ID, "job", pj.Name, "error", err)
		} else if artifact != nil {
			state.addArtifact(artifact)
		}
	}

	return false
}

// jobEnv assembles the full environment for one job
func (r *Runner) jobEnv(prep *PreparedRun, stageName string, pj model.PlannedJob, baseVars map[string]string) []string {
	merged := maps.Clone(baseVars)
	for name, value := range pj.Spec.Variables {
		merged[name] = os.Expand(value, func(ref string) string {
			if v, ok := baseVars[ref]; ok {
				return v
			}
			return os.Getenv(ref)
		})
	}

	workDir, err := filepath.Abs(r.workDir)
	if err != nil {
		workDir = r.workDir
	}

	merged[types.EnvPipelineID] = prep.Run.ID
	merged[types.EnvJobName] = pj.Name
	merged[types.EnvJobStage] = stageName
	merged[types.EnvProjectDir] = workDir
	if prep.Trigger.CommitSHA != "" {
		merged[types.EnvCommitSHA] = prep.Trigger.CommitSHA
	}
	if prep.Trigger.Ref != "" {
		merged[types.EnvCommitRef] = prep.Trigger.Ref
	}

	env := os.Environ()
	for name, value := range merged {
		env = append(env, name+"="+value)
	}
	return env
}

// markStage finalizes all jobs of a stage that will not run
func (r *Runner) markStage(ctx context.Context, stage model.PlanStage,
	records map[string]*model.JobRecord, state *runState, status model.Status) {
	for _, pj := range stage.Jobs {
		r.finishJob(ctx, records[pj.Name], status, 0, state)
	}
}

// finishJob records a terminal job status
func (r *Runner) finishJob(ctx context.Context, rec *model.JobRecord, status model.Status, exitCode int, state *runState) {
	now := time.Now().UTC()
	rec.Status = status
	rec.ExitCode = exitCode
	if rec.StartedAt != nil || status == model.StatusCanceled || status == model.StatusFailed || status == model.StatusSuccess {
		rec.FinishedAt = &now
	}
	state.setStatus(rec.Name, status)
	r.storeJob(ctx, rec)
}

// storeJob persists a job row; store failures degrade to warnings so a
// run never dies on bookkeeping. The write is detached from run
// cancellation so terminal statuses of a canceled run still get recorded.
func (r *Runner) storeJob(ctx context.Context, rec *model.JobRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.UpdateJob(context.WithoutCancel(ctx), rec); err != nil {
		ctxlog.From(ctx).Warn("Failed to persist job record",
			"run_id", rec.RunID, "job", rec.Name, "error", err)
	}
}

func (r *Runner) storeRunStatus(ctx context.Context, runID string, status model.Status, doneAt *time.Time) {
	if r.store == nil {
		return
	}
	if err := r.store.UpdateRunStatus(context.WithoutCancel(ctx), runID, status, doneAt); err != nil {
		ctxlog.From(ctx).Warn("Failed to persist run status",
			"run_id", runID, "status", status, "error", err)
	}
}

var unsafeNamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeName(name string) string {
	return unsafeNamePattern.ReplaceAllString(name, "_")
}
