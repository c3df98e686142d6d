package rulesapi

import "time"

type SubmitJobRequest struct {
	Technology string `json:"technology,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	Lane       string `json:"lane,omitempty"`
	Priority   string `json:"priority,omitempty"`
	Source     string `json:"source,omitempty"`
}

type SubmittedJob struct {
	JobID      string `json:"job_id"`
	RuleType   string `json:"rule_type"`
	Technology string `json:"technology"`
	Lane       string `json:"lane"`
}

type SubmitJobResponse struct {
	Accepted bool           `json:"accepted"`
	Jobs     []SubmittedJob `json:"jobs"`
}

type LaneStats struct {
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Dead      int `json:"dead"`
}

type QueueStatsResponse struct {
	Lanes map[string]LaneStats `json:"lanes"`
}

type DeadJob struct {
	JobID     string `json:"job_id"`
	RuleType  string `json:"rule_type"`
	Lane      string `json:"lane"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

type RetryDeadResponse struct {
	Requeued int `json:"requeued"`
}

type TriggerInfo struct {
	Name       string `json:"name"`
	Schedule   string `json:"schedule"`
	Enabled    bool   `json:"enabled"`
	Firing     bool   `json:"firing"`
	LastRun    string `json:"last_run,omitempty"`
	NextRun    string `json:"next_run,omitempty"`
	RunCount   int    `json:"run_count"`
	ErrorCount int    `json:"error_count"`
	Skipped    int    `json:"skipped"`
}

type ListTriggersResponse struct {
	Triggers []TriggerInfo `json:"triggers"`
}

type TriggerActionResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

type TrendInfo struct {
	Technology string   `json:"technology"`
	Score      float64  `json:"score"`
	Breaking   bool     `json:"breaking"`
	Sources    []string `json:"sources,omitempty"`
	ComputedAt string   `json:"computed_at"`
	Fresh      bool     `json:"fresh"`
}

type ListTrendsResponse struct {
	Trends []TrendInfo `json:"trends"`
}

type ArtifactVersion struct {
	Version    string `json:"version"`
	ArchivedAt string `json:"archived_at,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Active     bool   `json:"active"`
	Checksum   string `json:"checksum,omitempty"`
}

type HistoryResponse struct {
	RuleType string            `json:"rule_type"`
	Versions []ArtifactVersion `json:"versions"`
}

type RollbackRequest struct {
	Version string `json:"version"`
}

type RollbackResponse struct {
	RuleType string `json:"rule_type"`
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
}

type CleanupRequest struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

type CleanupResponse struct {
	Removed int `json:"removed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func RFC3339Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
