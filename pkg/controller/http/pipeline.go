package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

// PipelineHandler serves pipeline trigger and run inspection requests
type PipelineHandler struct {
	pipelineUC interfaces.PipelineUseCase
}

// NewPipelineHandler creates a new PipelineHandler
func NewPipelineHandler(pipelineUC interfaces.PipelineUseCase) *PipelineHandler {
	return &PipelineHandler{pipelineUC: pipelineUC}
}

type triggerRequest struct {
	Source    string          `json:"source"`
	Ref       string          `json:"ref,omitempty"`
	CommitSHA string          `json:"commit_sha,omitempty"`
	Variables model.Variables `json:"variables,omitempty"`
}

// Trigger starts a pipeline run
func (h *PipelineHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, goerr.Wrap(err, "invalid JSON payload"), http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		writeError(w, goerr.New("source is required"), http.StatusBadRequest)
		return
	}

	runID, err := h.pipelineUC.Trigger(ctx, &model.TriggerInfo{
		Source:    req.Source,
		Ref:       req.Ref,
		CommitSHA: req.CommitSHA,
		Actor:     "api",
		Variables: req.Variables,
	})
	if err != nil {
		logger.Error("Failed to trigger pipeline", "source", req.Source, "error", err)
		writeError(w, err, statusFromError(err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// ListRuns returns non-failed runs for a source
func (h *PipelineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, goerr.New("source query parameter is required"), http.StatusBadRequest)
		return
	}

	runs, err := h.pipelineUC.ListRuns(ctx, source, r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, err, statusFromError(err))
		return
	}

	if runs == nil {
		runs = []*model.PipelineRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun returns a run with its job records
func (h *PipelineHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID := chi.URLParam(r, "runID")
	run, jobs, err := h.pipelineUC.GetRun(ctx, runID)
	if err != nil {
		writeError(w, err, statusFromError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":  run,
		"jobs": jobs,
	})
}
