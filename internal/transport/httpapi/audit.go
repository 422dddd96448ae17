package httpapi

import (
	"net/http"
	"strconv"

	"github.com/actionguard/gateway/internal/audit"
)

// handleListAudit implements ListAudit: a cursor over insertion order,
// descending.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := audit.QueryOptions{
		ProjectID:  q.Get("project_id"),
		AgentName:  q.Get("agent_name"),
		ActionType: q.Get("action_type"),
		OrderBy:    "id",
		OrderDesc:  true,
	}

	if allowed := q.Get("allowed"); allowed != "" {
		b, err := strconv.ParseBool(allowed)
		if err != nil {
			writeError(w, http.StatusBadRequest, "allowed must be a boolean")
			return
		}
		opts.Allowed = &b
	}

	opts.Limit = 50
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		opts.Offset = n
	}

	entries, err := s.auditSink.Query(r.Context(), opts)
	if err != nil {
		writeFaultError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
