package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
)

type sqliteStore struct {
	db *sql.DB
}

var _ interfaces.RunStore = (*sqliteStore)(nil)

// New opens (or creates) a SQLite run store at the given path
func New(dbPath string) (interfaces.RunStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", dbPath))
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to configure database", goerr.V("path", dbPath))
	}

	s := &sqliteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to initialize schema", goerr.V("path", dbPath))
	}

	return s, nil
}

func (s *sqliteStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_run (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			ref TEXT,
			status TEXT NOT NULL,
			initiated TIMESTAMP NOT NULL,
			date_done TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS job_record (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			log_path TEXT,
			PRIMARY KEY (run_id, name),
			FOREIGN KEY (run_id) REFERENCES pipeline_run(id)
		)`,
		`CREATE TABLE IF NOT EXISTS artifact (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			job_name TEXT NOT NULL,
			filename TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (run_id) REFERENCES pipeline_run(id)
		)`,
		`CREATE TABLE IF NOT EXISTS download (
			token TEXT PRIMARY KEY,
			artifact_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (artifact_id) REFERENCES artifact(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_source ON pipeline_run(source, initiated)`,
		`CREATE INDEX IF NOT EXISTS idx_artifact_run ON artifact(run_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return goerr.Wrap(err, "failed to execute schema statement")
		}
	}
	return nil
}

// CreateRun inserts a run with its pending job rows in one transaction
func (s *sqliteStore) CreateRun(ctx context.Context, run *model.PipelineRun, jobs []*model.JobRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pipeline_run (id, source, ref, status, initiated) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Ref, string(run.Status), run.Initiated,
	); err != nil {
		return goerr.Wrap(err, "failed to insert run", goerr.V("run_id", run.ID))
	}

	for _, job := range jobs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO job_record (run_id, name, stage, status) VALUES (?, ?, ?, ?)`,
			run.ID, job.Name, job.Stage, string(job.Status),
		); err != nil {
			return goerr.Wrap(err, "failed to insert job record",
				goerr.V("run_id", run.ID), goerr.V("job", job.Name))
		}
	}

	return tx.Commit()
}

// UpdateRunStatus transitions a run status
func (s *sqliteStore) UpdateRunStatus(ctx context.Context, runID string, status model.Status, doneAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_run SET status = ?, date_done = ? WHERE id = ?`,
		string(status), doneAt, runID,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to update run status", goerr.V("run_id", runID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(types.ErrRunNotFound, runID)
	}
	return nil
}

// UpdateJob updates one job row of a run
func (s *sqliteStore) UpdateJob(ctx context.Context, job *model.JobRecord) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE job_record
		 SET status = ?, exit_code = ?, started_at = ?, finished_at = ?, log_path = ?
		 WHERE run_id = ? AND name = ?`,
		string(job.Status), job.ExitCode, job.StartedAt, job.FinishedAt, job.LogPath,
		job.RunID, job.Name,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to update job record",
			goerr.V("run_id", job.RunID), goerr.V("job", job.Name))
	}
	return nil
}

// GetRun returns a run by ID
func (s *sqliteStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, ref, status, initiated, date_done FROM pipeline_run WHERE id = ?`,
		runID,
	)

	var run model.PipelineRun
	var status string
	if err := row.Scan(&run.ID, &run.Source, &run.Ref, &status, &run.Initiated, &run.DateDone); err != nil {
		if err == sql.ErrNoRows {
			return nil, goerr.Wrap(types.ErrRunNotFound, runID)
		}
		return nil, goerr.Wrap(err, "failed to query run", goerr.V("run_id", runID))
	}
	run.Status = model.Status(status)
	return &run, nil
}

// ListJobs returns the job rows of a run in insertion order
func (s *sqliteStore) ListJobs(ctx context.Context, runID string) ([]*model.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, name, stage, status, exit_code, started_at, finished_at, log_path
		 FROM job_record WHERE run_id = ? ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query job records", goerr.V("run_id", runID))
	}
	defer rows.Close()

	var jobs []*model.JobRecord
	for rows.Next() {
		var job model.JobRecord
		var status string
		var logPath sql.NullString
		if err := rows.Scan(&job.RunID, &job.Name, &job.Stage, &status, &job.ExitCode,
			&job.StartedAt, &job.FinishedAt, &logPath); err != nil {
			return nil, goerr.Wrap(err, "failed to scan job record", goerr.V("run_id", runID))
		}
		job.Status = model.Status(status)
		job.LogPath = logPath.String
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// ListRuns returns non-failed runs for a source initiated after the given
// time, newest first
func (s *sqliteStore) ListRuns(ctx context.Context, source string, initiatedAfter time.Time) ([]*model.PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, ref, status, initiated, date_done
		 FROM pipeline_run
		 WHERE source = ? AND status != ? AND initiated > ?
		 ORDER BY initiated DESC`,
		source, string(model.StatusFailed), initiatedAfter,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query runs", goerr.V("source", source))
	}
	defer rows.Close()

	var runs []*model.PipelineRun
	for rows.Next() {
		var run model.PipelineRun
		var status string
		if err := rows.Scan(&run.ID, &run.Source, &run.Ref, &status, &run.Initiated, &run.DateDone); err != nil {
			return nil, goerr.Wrap(err, "failed to scan run", goerr.V("source", source))
		}
		run.Status = model.Status(status)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// RecordArtifact inserts an artifact row
func (s *sqliteStore) RecordArtifact(ctx context.Context, artifact *model.Artifact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifact (id, run_id, job_name, filename, size_bytes, checksum, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		artifact.ID, artifact.RunID, artifact.JobName, artifact.Filename,
		artifact.SizeBytes, artifact.Checksum, artifact.CreatedAt,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert artifact",
			goerr.V("run_id", artifact.RunID), goerr.V("job", artifact.JobName))
	}
	return nil
}

// GetArtifact returns an artifact by ID
func (s *sqliteStore) GetArtifact(ctx context.Context, artifactID string) (*model.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, job_name, filename, size_bytes, checksum, created_at
		 FROM artifact WHERE id = ?`,
		artifactID,
	)
	return scanArtifact(row)
}

// FindArtifact returns the artifact produced by a job of a run
func (s *sqliteStore) FindArtifact(ctx context.Context, runID, jobName string) (*model.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, job_name, filename, size_bytes, checksum, created_at
		 FROM artifact WHERE run_id = ? AND job_name = ?`,
		runID, jobName,
	)
	return scanArtifact(row)
}

func scanArtifact(row *sql.Row) (*model.Artifact, error) {
	var artifact model.Artifact
	if err := row.Scan(&artifact.ID, &artifact.RunID, &artifact.JobName, &artifact.Filename,
		&artifact.SizeBytes, &artifact.Checksum, &artifact.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, goerr.Wrap(types.ErrArtifactNotFound, "no artifact row")
		}
		return nil, goerr.Wrap(err, "failed to scan artifact")
	}
	return &artifact, nil
}

// ListArtifactFilenames returns the artifact filenames of a run
func (s *sqliteStore) ListArtifactFilenames(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT filename FROM artifact WHERE run_id = ? ORDER BY created_at`,
		runID,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query artifact filenames", goerr.V("run_id", runID))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, goerr.Wrap(err, "failed to scan artifact filename", goerr.V("run_id", runID))
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CreateDownload records an issued download token
func (s *sqliteStore) CreateDownload(ctx context.Context, token, artifactID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO download (token, artifact_id, created_at) VALUES (?, ?, ?)`,
		token, artifactID, time.Now().UTC(),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert download record", goerr.V("artifact_id", artifactID))
	}
	return nil
}

// GetDownload returns the download record for a token
func (s *sqliteStore) GetDownload(ctx context.Context, token string) (*model.DownloadRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, artifact_id, created_at FROM download WHERE token = ?`,
		token,
	)

	var rec model.DownloadRecord
	if err := row.Scan(&rec.Token, &rec.ArtifactID, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, goerr.Wrap(types.ErrInvalidToken, "unknown token")
		}
		return nil, goerr.Wrap(err, "failed to scan download record")
	}
	return &rec, nil
}

// Close releases the underlying database handle
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
