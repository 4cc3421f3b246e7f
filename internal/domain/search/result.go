// Package search defines search result types.
package search

import "github.com/engramlabs/engram/internal/domain/scope"

// Result is a single search hit.
type Result struct {
	id       string
	score    float64
	scope    scope.Scope
	text     string
	metadata map[string]string
	summary  bool
}

// New creates a search result.
func New(id string, score float64, sc scope.Scope, text string, metadata map[string]string, summary bool) Result {
	return Result{id: id, score: score, scope: sc, text: text, metadata: metadata, summary: summary}
}

// ID returns the event identifier.
func (r *Result) ID() string { return r.id }

// Score returns the fused relevance score (unitless, higher = more relevant).
func (r *Result) Score() float64 { return r.score }

// Scope returns the scope the hit came from.
func (r *Result) Scope() scope.Scope { return r.scope }

// Text returns the event text.
func (r *Result) Text() string { return r.text }

// Metadata returns the metadata snapshot.
func (r *Result) Metadata() map[string]string { return r.metadata }

// IsSummary reports whether the hit is a summary event.
func (r *Result) IsSummary() bool { return r.summary }

// Response is a full search response.
type Response struct {
	Results []Result
	// Partial is set when at least one tier was skipped due to a deadline
	// or backend failure.
	Partial bool
}
