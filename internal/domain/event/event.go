// Package event defines the MemoryEvent aggregate.
package event

import (
	"fmt"
	"time"

	"github.com/engramlabs/engram/internal/domain"
	"github.com/engramlabs/engram/internal/domain/scope"
)

// MaxTextSize is the maximum event text size in bytes.
const MaxTextSize = 163840 // 160KB

// DefaultImportance is assigned when the caller leaves importance unset.
const DefaultImportance = 0.5

// SummaryImportance is the fixed importance of summarizer-produced events.
const SummaryImportance = 0.8

// RefKey is the metadata key marking a pure reference/link event, which may
// have empty text.
const RefKey = "ref"

// reservedKeys are metadata keys owned by the engine. They are strictly
// typed fields on the event itself and must not arrive via caller metadata.
var reservedKeys = map[string]bool{
	"importance": true,
	"summary":    true,
	"source_ids": true,
	"archived":   true,
}

// Event is one unit of remembered information (immutable value object).
type Event struct {
	id         string
	scope      scope.Scope
	project    string
	threadID   string
	text       string
	metadata   map[string]string
	importance float64
	summary    bool
	sourceIDs  []string
	archived   bool
	ts         time.Time
	vector     []float32
}

// New validates and creates an Event. The id, timestamp and vector are
// assigned later by the write path.
func New(
	scopeName, project, threadID, text string,
	metadata map[string]string, importance *float64,
) (Event, error) {
	sc, err := scope.Parse(scopeName)
	if err != nil {
		return Event{}, err
	}
	if sc == scope.Thread && threadID == "" {
		return Event{}, fmt.Errorf("thread scope requires a thread_id: %w", domain.ErrValidation)
	}
	if text == "" && metadata[RefKey] == "" {
		return Event{}, fmt.Errorf("text is required: %w", domain.ErrValidation)
	}
	if len(text) > MaxTextSize {
		return Event{}, fmt.Errorf("text too large (max %d bytes): %w", MaxTextSize, domain.ErrValidation)
	}
	for k := range metadata {
		if reservedKeys[k] {
			return Event{}, fmt.Errorf("metadata key %q is reserved: %w", k, domain.ErrValidation)
		}
	}

	imp := DefaultImportance
	if importance != nil {
		imp = *importance
	}
	// Written so NaN fails too.
	if !(imp >= 0 && imp <= 1) {
		return Event{}, fmt.Errorf("importance must be within [0,1], got %f: %w", imp, domain.ErrValidation)
	}

	return Event{
		scope:      sc,
		project:    project,
		threadID:   threadID,
		text:       text,
		metadata:   cloneMap(metadata),
		importance: imp,
	}, nil
}

// NewSummary creates a summarizer-produced Event condensing the given source
// ids. Source ids are weak references: deleting a source does not invalidate
// the summary.
func NewSummary(project, threadID, text string, sourceIDs []string) (Event, error) {
	if text == "" {
		return Event{}, fmt.Errorf("summary text is required: %w", domain.ErrValidation)
	}
	if len(sourceIDs) == 0 {
		return Event{}, fmt.Errorf("summary requires source ids: %w", domain.ErrValidation)
	}
	ids := make([]string, len(sourceIDs))
	copy(ids, sourceIDs)
	return Event{
		scope:      scope.Thread,
		project:    project,
		threadID:   threadID,
		text:       text,
		importance: SummaryImportance,
		summary:    true,
		sourceIDs:  ids,
	}, nil
}

// Reconstruct creates an Event without validation (storage hydration).
func Reconstruct(
	id string, sc scope.Scope, project, threadID, text string,
	metadata map[string]string, importance float64,
	summary bool, sourceIDs []string, archived bool,
	ts time.Time, vector []float32,
) Event {
	return Event{
		id: id, scope: sc, project: project, threadID: threadID, text: text,
		metadata: metadata, importance: importance,
		summary: summary, sourceIDs: sourceIDs, archived: archived,
		ts: ts, vector: vector,
	}
}

// ID returns the event identifier.
func (e *Event) ID() string { return e.id }

// Scope returns the event scope.
func (e *Event) Scope() scope.Scope { return e.scope }

// Project returns the owning project (empty = default namespace).
func (e *Event) Project() string { return e.project }

// ThreadID returns the conversational grouping key.
func (e *Event) ThreadID() string { return e.threadID }

// Text returns the primary content.
func (e *Event) Text() string { return e.text }

// Metadata returns the open extension map.
func (e *Event) Metadata() map[string]string { return e.metadata }

// Importance returns the retention score in [0,1].
func (e *Event) Importance() float64 { return e.importance }

// IsSummary reports whether this event was produced by the summarizer.
func (e *Event) IsSummary() bool { return e.summary }

// SourceIDs returns the ids a summary event condenses.
func (e *Event) SourceIDs() []string { return e.sourceIDs }

// Archived reports whether the event is soft-deleted.
func (e *Event) Archived() bool { return e.archived }

// Timestamp returns the creation time.
func (e *Event) Timestamp() time.Time { return e.ts }

// Vector returns the dense embedding.
func (e *Event) Vector() []float32 { return e.vector }

// WithIdentity returns a copy with id and timestamp assigned.
func (e Event) WithIdentity(id string, ts time.Time) Event {
	e.id = id
	e.ts = ts
	return e
}

// WithVector returns a copy with the embedding set.
func (e Event) WithVector(v []float32) Event {
	e.vector = v
	return e
}

// AsArchived returns a copy marked as soft-deleted.
func (e Event) AsArchived() Event {
	e.archived = true
	return e
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
