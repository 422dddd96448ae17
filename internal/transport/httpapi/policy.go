package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/actionguard/gateway/internal/gwerrors"
	"github.com/actionguard/gateway/internal/policy"
	"github.com/actionguard/gateway/internal/store"
)

func (s *Server) handleGetActivePolicy(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")

	p, err := s.policyStore.Get(r.Context(), projectID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no active policy for project "+projectID)
		return
	}
	if err != nil {
		writeFaultError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")

	var raw policy.RawPolicy
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := s.policyStore.Put(r.Context(), projectID, &raw)
	if err != nil {
		if gwerrors.IsPolicyMalformed(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeFaultError(w, err)
		return
	}

	s.pipeline.InvalidatePolicy(projectID)

	writeJSON(w, http.StatusOK, p)
}
