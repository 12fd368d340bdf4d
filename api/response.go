package api

import (
	"encoding/json"
	"net/http"

	"github.com/wcallahan/searchai/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON renders v as the response body. Encoding failures are logged,
// not surfaced; by then the status line is already gone.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", "error", err)
	}
}

// writeError renders a JSON error body with the given status.
func writeError(w http.ResponseWriter, logger log.Logger, status int, message string) {
	writeJSON(w, logger, status, errorResponse{Error: message})
}
