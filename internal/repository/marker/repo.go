// Package marker persists summarization progress markers in a key-value
// store, keyed per collection and thread.
package marker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/engramlabs/engram/internal/db"
)

// Marker records how far the summarizer has progressed in one thread.
// LastTS and LastID point at the newest source event covered by a summary.
type Marker struct {
	LastTS  time.Time `json:"last_ts"`
	LastID  string    `json:"last_id"`
	LastRun time.Time `json:"last_run"`
}

// store is the consumer interface for markers (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo implements marker persistence over a key-value store.
type Repo struct {
	store store
}

// New creates a marker repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Get returns the marker for a thread. A missing marker is a zero Marker,
// not an error.
func (r *Repo) Get(ctx context.Context, collection, threadID string) (Marker, error) {
	data, err := r.store.Get(ctx, markerKey(collection, threadID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return Marker{}, nil
		}
		return Marker{}, fmt.Errorf("get marker: %w", err)
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("unmarshal marker: %w", err)
	}
	return m, nil
}

// Set stores the marker for a thread.
func (r *Repo) Set(ctx context.Context, collection, threadID string, m Marker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if err := r.store.Set(ctx, markerKey(collection, threadID), data); err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

func markerKey(collection, threadID string) string {
	return "marker:" + collection + ":" + threadID
}
