package chi

import (
	"time"

	domevent "github.com/engramlabs/engram/internal/domain/event"
	domsearch "github.com/engramlabs/engram/internal/domain/search"
)

// Error codes returned in the body of non-2xx responses.
const (
	codeBadRequest         = "bad_request"
	codeValidationFailed   = "validation_failed"
	codePolicyViolation    = "policy_violation"
	codeNotFound           = "not_found"
	codeBackendUnavailable = "backend_unavailable"
	codeEncoderUnavailable = "encoder_unavailable"
	codeUnauthorized       = "unauthorized"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Detector string `json:"detector,omitempty"`
}

type writeEventRequest struct {
	Scope      string            `json:"scope" validate:"required"`
	Project    string            `json:"project,omitempty"`
	ThreadID   string            `json:"thread_id,omitempty"`
	Text       string            `json:"text,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Importance *float64          `json:"importance,omitempty" validate:"omitempty,gte=0,lte=1"`
}

type searchRequest struct {
	Query    string   `json:"query" validate:"required"`
	Scopes   []string `json:"scopes,omitempty"`
	K        int      `json:"k,omitempty" validate:"omitempty,gte=1"`
	Project  string   `json:"project,omitempty"`
	ThreadID string   `json:"thread_id,omitempty"`
}

type pruneRequest struct {
	Scope     string   `json:"scope" validate:"required"`
	Project   string   `json:"project,omitempty"`
	Threshold *float64 `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
}

type eventResponse struct {
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

type searchHit struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Scope    string            `json:"scope"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Summary  bool              `json:"summary,omitempty"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
	Partial bool        `json:"partial,omitempty"`
}

type summarizeStatusResponse struct {
	LastRun *time.Time `json:"last_run,omitempty"`
	LastID  string     `json:"last_id,omitempty"`
	Pending int        `json:"pending"`
}

type pruneResponse struct {
	Archived int `json:"archived"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func eventToDTO(e *domevent.Event) eventResponse {
	return eventResponse{
		ID:         e.ID(),
		Scope:      e.Scope().String(),
		Project:    e.Project(),
		ThreadID:   e.ThreadID(),
		Text:       e.Text(),
		Metadata:   e.Metadata(),
		Importance: e.Importance(),
		Summary:    e.IsSummary(),
		SourceIDs:  e.SourceIDs(),
		Timestamp:  e.Timestamp(),
	}
}

func searchToDTO(resp domsearch.Response) searchResponse {
	hits := make([]searchHit, len(resp.Results))
	for i := range resp.Results {
		r := &resp.Results[i]
		hits[i] = searchHit{
			ID:       r.ID(),
			Score:    r.Score(),
			Scope:    r.Scope().String(),
			Text:     r.Text(),
			Metadata: r.Metadata(),
			Summary:  r.IsSummary(),
		}
	}
	return searchResponse{Results: hits, Partial: resp.Partial}
}
