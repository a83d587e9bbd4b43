package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
	"github.com/m-mizutani/stagehand/pkg/infra/store"
)

func newStore(t *testing.T) interfaces.RunStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "stagehand.db"))
	gt.NoError(t, err)
	t.Cleanup(func() {
		gt.NoError(t, s.Close())
	})
	return s
}

func newRun(source string, status model.Status, initiated time.Time) *model.PipelineRun {
	return &model.PipelineRun{
		ID:        uuid.NewString(),
		Source:    source,
		Ref:       "staging",
		Status:    status,
		Initiated: initiated,
	}
}

func TestCreateAndGetRun(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	run := newRun("github.com/example/download", model.StatusPending, time.Now().UTC())
	jobs := []*model.JobRecord{
		{RunID: run.ID, Name: "run_unit_tests", Stage: "test", Status: model.StatusPending},
		{RunID: run.ID, Name: "deploy_service", Stage: "deploy", Status: model.StatusPending},
	}
	gt.NoError(t, s.CreateRun(ctx, run, jobs))

	got, err := s.GetRun(ctx, run.ID)
	gt.NoError(t, err)
	gt.Value(t, got.Source).Equal(run.Source)
	gt.Value(t, got.Status).Equal(model.StatusPending)
	gt.Value(t, got.DateDone).Equal(nil)

	listed, err := s.ListJobs(ctx, run.ID)
	gt.NoError(t, err)
	gt.Array(t, listed).Length(2)
	gt.Value(t, listed[0].Name).Equal("run_unit_tests")
	gt.Value(t, listed[1].Name).Equal("deploy_service")
}

func TestGetRun_NotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetRun(context.Background(), "no-such-run")
	gt.Error(t, err)
	gt.Value(t, errors.Is(err, types.ErrRunNotFound)).Equal(true)
}

func TestUpdateRunStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	run := newRun("github.com/example/download", model.StatusPending, time.Now().UTC())
	gt.NoError(t, s.CreateRun(ctx, run, nil))

	now := time.Now().UTC()
	gt.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.StatusSuccess, &now))

	got, err := s.GetRun(ctx, run.ID)
	gt.NoError(t, err)
	gt.Value(t, got.Status).Equal(model.StatusSuccess)
	gt.Value(t, got.DateDone).NotEqual(nil)

	gt.Error(t, s.UpdateRunStatus(ctx, "no-such-run", model.StatusSuccess, &now))
}

func TestUpdateJob(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	run := newRun("github.com/example/download", model.StatusRunning, time.Now().UTC())
	job := &model.JobRecord{RunID: run.ID, Name: "run_unit_tests", Stage: "test", Status: model.StatusPending}
	gt.NoError(t, s.CreateRun(ctx, run, []*model.JobRecord{job}))

	started := time.Now().UTC()
	finished := started.Add(3 * time.Second)
	job.Status = model.StatusFailed
	job.ExitCode = 1
	job.StartedAt = &started
	job.FinishedAt = &finished
	job.LogPath = "/var/log/stagehand/run_unit_tests.log"
	gt.NoError(t, s.UpdateJob(ctx, job))

	listed, err := s.ListJobs(ctx, run.ID)
	gt.NoError(t, err)
	gt.Value(t, listed[0].Status).Equal(model.StatusFailed)
	gt.Value(t, listed[0].ExitCode).Equal(1)
	gt.Value(t, listed[0].LogPath).Equal(job.LogPath)
	gt.Value(t, listed[0].StartedAt).NotEqual(nil)
	gt.Value(t, listed[0].FinishedAt).NotEqual(nil)
}

func TestListRuns(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	older := newRun("github.com/example/download", model.StatusSuccess, base)
	newer := newRun("github.com/example/download", model.StatusSuccess, base.Add(10*time.Minute))
	failed := newRun("github.com/example/download", model.StatusFailed, base.Add(20*time.Minute))
	other := newRun("github.com/example/etsin", model.StatusSuccess, base.Add(30*time.Minute))

	for _, run := range []*model.PipelineRun{older, newer, failed, other} {
		gt.NoError(t, s.CreateRun(ctx, run, nil))
	}

	// Failed runs and other sources are filtered out, newest first
	runs, err := s.ListRuns(ctx, "github.com/example/download", time.Time{})
	gt.NoError(t, err)
	gt.Array(t, runs).Length(2)
	gt.Value(t, runs[0].ID).Equal(newer.ID)
	gt.Value(t, runs[1].ID).Equal(older.ID)

	runs, err = s.ListRuns(ctx, "github.com/example/download", base.Add(5*time.Minute))
	gt.NoError(t, err)
	gt.Array(t, runs).Length(1)
	gt.Value(t, runs[0].ID).Equal(newer.ID)
}

func TestArtifacts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	run := newRun("github.com/example/download", model.StatusSuccess, time.Now().UTC())
	gt.NoError(t, s.CreateRun(ctx, run, nil))

	artifact := &model.Artifact{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		JobName:   "run_unit_tests",
		Filename:  filepath.Join(run.ID, "run_unit_tests.zip"),
		SizeBytes: 1024,
		Checksum:  "deadbeef",
		CreatedAt: time.Now().UTC(),
	}
	gt.NoError(t, s.RecordArtifact(ctx, artifact))

	got, err := s.GetArtifact(ctx, artifact.ID)
	gt.NoError(t, err)
	gt.Value(t, got.Filename).Equal(artifact.Filename)
	gt.Value(t, got.SizeBytes).Equal(artifact.SizeBytes)

	found, err := s.FindArtifact(ctx, run.ID, "run_unit_tests")
	gt.NoError(t, err)
	gt.Value(t, found.ID).Equal(artifact.ID)

	_, err = s.FindArtifact(ctx, run.ID, "no_such_job")
	gt.Error(t, err)
	gt.Value(t, errors.Is(err, types.ErrArtifactNotFound)).Equal(true)

	names, err := s.ListArtifactFilenames(ctx, run.ID)
	gt.NoError(t, err)
	gt.Array(t, names).Equal([]string{artifact.Filename})
}

func TestDownloads(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	run := newRun("github.com/example/download", model.StatusSuccess, time.Now().UTC())
	gt.NoError(t, s.CreateRun(ctx, run, nil))

	artifact := &model.Artifact{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		JobName:   "run_unit_tests",
		Filename:  "artifact.zip",
		SizeBytes: 16,
		Checksum:  "cafe",
		CreatedAt: time.Now().UTC(),
	}
	gt.NoError(t, s.RecordArtifact(ctx, artifact))

	gt.NoError(t, s.CreateDownload(ctx, "token-1", artifact.ID))

	rec, err := s.GetDownload(ctx, "token-1")
	gt.NoError(t, err)
	gt.Value(t, rec.ArtifactID).Equal(artifact.ID)

	_, err = s.GetDownload(ctx, "token-2")
	gt.Error(t, err)
	gt.Value(t, errors.Is(err, types.ErrInvalidToken)).Equal(true)
}
