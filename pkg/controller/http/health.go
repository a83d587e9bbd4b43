package http

import (
	"net/http"

	"github.com/m-mizutani/stagehand/pkg/domain/model"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
)

// handleHealth handles health check requests
func handleHealth(w http.ResponseWriter, r *http.Request) {
	status := &model.HealthStatus{
		Status:  "healthy",
		Service: "stagehand",
		Version: types.Version,
	}

	writeJSON(w, http.StatusOK, status)
}
