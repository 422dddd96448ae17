package audit

import "time"

// Entry is a single audit log record for one non-simulated Decide call.
type Entry struct {
	ID        int64     `json:"id"`
	ActionID  string    `json:"action_id"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMs float64   `json:"latency_ms"`

	ProjectID  string `json:"project_id"`
	AgentName  string `json:"agent_name"`
	ActionType string `json:"action_type"`
	Params     string `json:"params"` // JSON-encoded params tree

	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason,omitempty"`
	PolicyVersion  string `json:"policy_version,omitempty"`
	MatchedEffect  string `json:"matched_effect,omitempty"`
}

// QueryOptions filters AuditSink.Query results.
type QueryOptions struct {
	StartTime *time.Time
	EndTime   *time.Time

	ProjectID  string
	AgentName  string
	ActionType string
	Allowed    *bool

	Limit  int
	Offset int

	OrderBy   string
	OrderDesc bool
}

// Stats contains aggregate audit statistics.
type Stats struct {
	TotalDecisions  int64   `json:"total_decisions"`
	AllowedCount    int64   `json:"allowed_count"`
	BlockedCount    int64   `json:"blocked_count"`
	UniqueProjects  int64   `json:"unique_projects"`
	UniqueAgents    int64   `json:"unique_agents"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}
