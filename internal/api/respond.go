package api

import (
	"encoding/json"
	"net/http"

	"github.com/halftone-io/halftone/internal/apperror"
	"github.com/halftone-io/halftone/internal/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps any error to a JSON error body. Internal details never
// reach the client; apperror decides the safe message and status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.StatusCode(err)
	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed", "error", err)
	}
	writeJSONError(w, apperror.Code(err), apperror.SafeMessage(err), status)
}

func writeJSONError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
