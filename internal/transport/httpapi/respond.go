package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/actionguard/gateway/internal/gwerrors"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

// errorResponse is the wire shape of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFaultError maps an error returned from the decision pipeline or a
// store onto an HTTP status: infrastructure faults are 503 (the caller may
// retry), anything else is an unexpected 500.
func writeFaultError(w http.ResponseWriter, err error) {
	if gwerrors.IsInfraFault(err) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	log.Error().Err(err).Msg("unhandled error in http handler")
	writeError(w, http.StatusInternalServerError, "internal error")
}
