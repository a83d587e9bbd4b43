package model

import "time"

// Status represents the execution state of a pipeline run or a job
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusSkipped  Status = "skipped"
)

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCanceled, StatusSkipped:
		return true
	}
	return false
}

// PipelineRun is one recorded execution of a pipeline configuration
type PipelineRun struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"` // configuration origin, e.g. file path or repository
	Ref       string     `json:"ref,omitempty"`
	Status    Status     `json:"status"`
	Initiated time.Time  `json:"initiated"`
	DateDone  *time.Time `json:"date_done,omitempty"`
}

// JobRecord is the recorded state of one job within a run
type JobRecord struct {
	RunID      string     `json:"run_id"`
	Name       string     `json:"name"`
	Stage      string     `json:"stage"`
	Status     Status     `json:"status"`
	ExitCode   int        `json:"exit_code"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LogPath    string     `json:"log_path,omitempty"`
}

// RunResult is the outcome of a completed pipeline execution
type RunResult struct {
	Run       *PipelineRun
	Jobs      []*JobRecord
	Artifacts []*Artifact
}

// Failed reports whether the pipeline as a whole failed
func (r *RunResult) Failed() bool {
	return r.Run != nil && r.Run.Status == StatusFailed
}
