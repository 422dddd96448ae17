package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/actionguard/gateway/internal/action"
	"github.com/actionguard/gateway/internal/decision"
)

// decideRequest is the wire shape of a Decide call.
type decideRequest struct {
	ProjectID  string                 `json:"project_id"`
	AgentName  string                 `json:"agent_name"`
	ActionType string                 `json:"action_type"`
	Params     map[string]interface{} `json:"params"`
	Simulate   bool                   `json:"simulate"`
}

// decideResponse is the wire shape of a Decision, with ISO-8601
// timestamps.
type decideResponse struct {
	Allowed       bool    `json:"allowed"`
	ActionID      *string `json:"action_id"`
	Timestamp     string  `json:"timestamp"`
	Reason        string  `json:"reason,omitempty"`
	PolicyVersion string  `json:"policy_version,omitempty"`
	ExecutionMs   float64 `json:"execution_time_ms"`
	Simulated     bool    `json:"simulated"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ProjectID == "" || req.AgentName == "" || req.ActionType == "" {
		writeError(w, http.StatusBadRequest, "project_id, agent_name, and action_type are required")
		return
	}

	act := action.Action{
		ProjectID:  req.ProjectID,
		AgentName:  req.AgentName,
		ActionType: req.ActionType,
		Params:     action.ValueFromJSON(map[string]interface{}(req.Params)),
	}

	d, err := s.pipeline.Decide(r.Context(), act, decision.Options{Simulate: req.Simulate})
	if err != nil {
		writeFaultError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDecideResponse(d))
}

func toDecideResponse(d decision.Decision) decideResponse {
	resp := decideResponse{
		Allowed:       d.Allowed,
		Timestamp:     d.Timestamp.Format(time.RFC3339Nano),
		Reason:        d.Reason,
		PolicyVersion: d.PolicyVersion,
		ExecutionMs:   d.ExecutionMs,
		Simulated:     d.Simulated,
	}
	if d.ActionID != "" {
		id := d.ActionID
		resp.ActionID = &id
	}
	return resp
}
