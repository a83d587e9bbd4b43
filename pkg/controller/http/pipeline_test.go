package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
)

func TestTriggerEndpoint(t *testing.T) {
	var triggered *model.TriggerInfo
	uc := &pipelineUCMock{
		trigger: func(ctx context.Context, info *model.TriggerInfo) (string, error) {
			triggered = info
			return "run-42", nil
		},
	}
	ts := newTestServer(t, uc)

	payload := `{"source": "github.com/example/download", "ref": "staging", "variables": {"INSTANCE": "download-demo"}}`
	resp, err := http.Post(ts.URL+"/api/v1/pipelines", "application/json", bytes.NewBufferString(payload))
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Value(t, resp.StatusCode).Equal(http.StatusAccepted)

	var body map[string]string
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	gt.Value(t, body["run_id"]).Equal("run-42")

	gt.Value(t, triggered.Source).Equal("github.com/example/download")
	gt.Value(t, triggered.Actor).Equal("api")
	gt.Value(t, triggered.Variables["INSTANCE"]).Equal("download-demo")
}

func TestTriggerEndpoint_MissingSource(t *testing.T) {
	ts := newTestServer(t, &pipelineUCMock{})

	resp, err := http.Post(ts.URL+"/api/v1/pipelines", "application/json", bytes.NewBufferString(`{}`))
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Value(t, resp.StatusCode).Equal(http.StatusBadRequest)
}

func TestTriggerEndpoint_InvalidConfig(t *testing.T) {
	uc := &pipelineUCMock{
		trigger: func(ctx context.Context, info *model.TriggerInfo) (string, error) {
			return "", goerr.Wrap(types.ErrInvalidConfig, "job has no script")
		},
	}
	ts := newTestServer(t, uc)

	resp, err := http.Post(ts.URL+"/api/v1/pipelines", "application/json",
		bytes.NewBufferString(`{"source": "github.com/example/download"}`))
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Value(t, resp.StatusCode).Equal(http.StatusBadRequest)
}

func TestGetRunEndpoint(t *testing.T) {
	now := time.Now().UTC()
	uc := &pipelineUCMock{
		getRun: func(ctx context.Context, runID string) (*model.PipelineRun, []*model.JobRecord, error) {
			gt.Value(t, runID).Equal("run-42")
			run := &model.PipelineRun{ID: runID, Source: "github.com/example/download",
				Status: model.StatusSuccess, Initiated: now}
			jobs := []*model.JobRecord{
				{RunID: runID, Name: "run_unit_tests", Stage: "test", Status: model.StatusSuccess},
			}
			return run, jobs, nil
		},
	}
	ts := newTestServer(t, uc)

	resp, err := http.Get(ts.URL + "/api/v1/runs/run-42")
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Value(t, resp.StatusCode).Equal(http.StatusOK)

	var body struct {
		Run  *model.PipelineRun `json:"run"`
		Jobs []*model.JobRecord `json:"jobs"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	gt.Value(t, body.Run.Status).Equal(model.StatusSuccess)
	gt.Array(t, body.Jobs).Length(1)
}

func TestGetRunEndpoint_NotFound(t *testing.T) {
	uc := &pipelineUCMock{
		getRun: func(ctx context.Context, runID string) (*model.PipelineRun, []*model.JobRecord, error) {
			return nil, nil, goerr.Wrap(types.ErrRunNotFound, runID)
		},
	}
	ts := newTestServer(t, uc)

	resp, err := http.Get(ts.URL + "/api/v1/runs/no-such-run")
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Value(t, resp.StatusCode).Equal(http.StatusNotFound)
}

func TestListRunsEndpoint(t *testing.T) {
	uc := &pipelineUCMock{
		listRuns: func(ctx context.Context, source, initiatedAfter string) ([]*model.PipelineRun, error) {
			gt.Value(t, source).Equal("github.com/example/download")
			gt.Value(t, initiatedAfter).Equal("2026-08-01T00:00:00Z")
			return nil, nil
		},
	}
	ts := newTestServer(t, uc)

	resp, err := http.Get(ts.URL + "/api/v1/runs?source=github.com%2Fexample%2Fdownload&since=2026-08-01T00%3A00%3A00Z")
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Value(t, resp.StatusCode).Equal(http.StatusOK)

	var body struct {
		Runs []*model.PipelineRun `json:"runs"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	gt.Value(t, body.Runs).NotEqual(nil)
	gt.Array(t, body.Runs).Length(0)
}

func TestListRunsEndpoint_BadSince(t *testing.T) {
	uc := &pipelineUCMock{
		listRuns: func(ctx context.Context, source, initiatedAfter string) ([]*model.PipelineRun, error) {
			return nil, goerr.Wrap(types.ErrInvalidArgument, "invalid initiated_after timestamp")
		},
	}
	ts := newTestServer(t, uc)

	resp, err := http.Get(ts.URL + "/api/v1/runs?source=github.com%2Fexample%2Fdownload&since=yesterday")
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Value(t, resp.StatusCode).Equal(http.StatusBadRequest)
}

func TestListRunsEndpoint_StoreFailure(t *testing.T) {
	uc := &pipelineUCMock{
		listRuns: func(ctx context.Context, source, initiatedAfter string) ([]*model.PipelineRun, error) {
			return nil, goerr.New("disk I/O error")
		},
	}
	ts := newTestServer(t, uc)

	resp, err := http.Get(ts.URL + "/api/v1/runs?source=github.com%2Fexample%2Fdownload")
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Value(t, resp.StatusCode).Equal(http.StatusInternalServerError)
}

func TestListRunsEndpoint_MissingSource(t *testing.T) {
	ts := newTestServer(t, &pipelineUCMock{})

	resp, err := http.Get(ts.URL + "/api/v1/runs")
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Value(t, resp.StatusCode).Equal(http.StatusBadRequest)
}
