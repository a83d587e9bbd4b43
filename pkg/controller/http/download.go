package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
)

// DownloadHandler serves artifact download authorization and redemption
type DownloadHandler struct {
	downloadUC interfaces.DownloadUseCase
}

// NewDownloadHandler creates a new DownloadHandler
func NewDownloadHandler(downloadUC interfaces.DownloadUseCase) *DownloadHandler {
	return &DownloadHandler{downloadUC: downloadUC}
}

// Authorize issues a download token for a job's artifact
func (h *DownloadHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID := chi.URLParam(r, "runID")
	jobName := chi.URLParam(r, "jobName")

	token, err := h.downloadUC.IssueToken(ctx, runID, jobName)
	if err != nil {
		writeError(w, err, statusFromError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Download redeems a token and streams the artifact zip
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, goerr.New("token query parameter is required"), http.StatusBadRequest)
		return
	}

	artifact, path, err := h.downloadUC.Redeem(ctx, token)
	if err != nil {
		logger.Warn("Rejected artifact download", "error", err)
		writeError(w, err, statusFromError(err))
		return
	}

	logger.Info("Serving artifact download",
		"artifact_id", artifact.ID,
		"run_id", artifact.RunID,
		"job", artifact.JobName,
		"size_bytes", artifact.SizeBytes,
	)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.JobName+`.zip"`)
	http.ServeFile(w, r, path)
}
