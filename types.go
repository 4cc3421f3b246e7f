package engram

import "time"

// Event is one stored memory event.
type Event struct {
	ID         string            `json:"id"`
	Scope      string            `json:"scope"`
	Project    string            `json:"project,omitempty"`
	ThreadID   string            `json:"thread_id,omitempty"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Importance float64           `json:"importance"`
	Summary    bool              `json:"summary,omitempty"`
	SourceIDs  []string          `json:"source_ids,omitempty"`
	Timestamp  time.Time         `json:"ts"`
}

// WriteRequest creates one memory event.
type WriteRequest struct {
	Scope      string            `json:"scope"`
	Project    string            `json:"project,omitempty"`
	ThreadID   string            `json:"thread_id,omitempty"`
	Text       string            `json:"text,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	// Importance must be within [0,1]; nil means the service default.
	Importance *float64 `json:"importance,omitempty"`
}

// SearchRequest is one tiered hybrid search.
type SearchRequest struct {
	Query string `json:"query"`
	// Scopes restricts the search; empty means all scopes in tier order.
	Scopes   []string `json:"scopes,omitempty"`
	K        int      `json:"k,omitempty"`
	Project  string   `json:"project,omitempty"`
	ThreadID string   `json:"thread_id,omitempty"`
}

// SearchHit is a single search result.
type SearchHit struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Scope    string            `json:"scope"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Summary  bool              `json:"summary,omitempty"`
}

// SearchResponse is a full search response.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
	// Partial is set when at least one scope tier was skipped due to a
	// deadline or backend failure.
	Partial bool `json:"partial,omitempty"`
}

// PruneRequest archives low-importance events of one scope.
type PruneRequest struct {
	Scope   string `json:"scope"`
	Project string `json:"project,omitempty"`
	// Threshold overrides the service's configured importance cutoff.
	Threshold *float64 `json:"threshold,omitempty"`
}

// SummarizeStatus reports summarization progress for one thread.
type SummarizeStatus struct {
	LastRun *time.Time `json:"last_run,omitempty"`
	LastID  string     `json:"last_id,omitempty"`
	Pending int        `json:"pending"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component -> "ok"/"error"
}
