// Package event persists memory events through the db.VectorStore contract.
package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/engramlabs/engram/internal/db"
	"github.com/engramlabs/engram/internal/domain"
	domevent "github.com/engramlabs/engram/internal/domain/event"
	"github.com/engramlabs/engram/internal/domain/scope"
)

// store is the consumer interface for event rows (ISP).
type store interface {
	EnsureCollection(ctx context.Context, name string, vectorDim int) error
	Upsert(ctx context.Context, collection string, row *db.Row) error
	Get(ctx context.Context, collection, id string) (*db.Row, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string, f db.Filter) ([]db.Row, error)
	QueryKNN(ctx context.Context, collection string, vector []float32, f db.Filter, k int) ([]db.Hit, error)
}

// Repo implements the event repository over a vector store driver.
type Repo struct {
	store store
}

// New creates an event repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureCollection creates the backing collection and vector index if missing.
func (r *Repo) EnsureCollection(ctx context.Context, name string, vectorDim int) error {
	if err := r.store.EnsureCollection(ctx, name, vectorDim); err != nil {
		return fmt.Errorf("ensure collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes vector and payload as one row. An existing id is replaced.
func (r *Repo) Upsert(ctx context.Context, collection string, e *domevent.Event) error {
	row, err := rowFromEvent(e)
	if err != nil {
		return err
	}
	if err := r.store.Upsert(ctx, collection, row); err != nil {
		return fmt.Errorf("upsert event %s: %w", e.ID(), err)
	}
	return nil
}

// Get returns one event by id, whether archived or not.
func (r *Repo) Get(ctx context.Context, collection, id string) (domevent.Event, error) {
	row, err := r.store.Get(ctx, collection, id)
	if err != nil {
		if errors.Is(err, db.ErrRowNotFound) {
			return domevent.Event{}, domain.ErrNotFound
		}
		return domevent.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return eventFromRow(row)
}

// Delete removes one event permanently. Missing events are not an error.
func (r *Repo) Delete(ctx context.Context, collection, id string) error {
	if err := r.store.Delete(ctx, collection, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// ListThread returns non-archived events of one thread.
func (r *Repo) ListThread(ctx context.Context, collection, threadID string) ([]domevent.Event, error) {
	return r.list(ctx, collection, db.Filter{
		Scope:    scope.Thread.String(),
		ThreadID: threadID,
	})
}

// ListScope returns non-archived events of one scope.
func (r *Repo) ListScope(ctx context.Context, collection string, sc scope.Scope) ([]domevent.Event, error) {
	return r.list(ctx, collection, db.Filter{Scope: sc.String()})
}

// ListAll returns every event in the collection, archived included. Used to
// rebuild in-memory state on startup.
func (r *Repo) ListAll(ctx context.Context, collection string) ([]domevent.Event, error) {
	return r.list(ctx, collection, db.Filter{IncludeArchived: true})
}

func (r *Repo) list(ctx context.Context, collection string, f db.Filter) ([]domevent.Event, error) {
	rows, err := r.store.List(ctx, collection, f)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]domevent.Event, 0, len(rows))
	for i := range rows {
		e, err := eventFromRow(&rows[i])
		if err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// SearchKNN returns up to k nearest non-archived events of one scope,
// most similar first.
func (r *Repo) SearchKNN(
	ctx context.Context, collection string, vector []float32,
	sc scope.Scope, threadID string, k int,
) ([]domevent.Event, error) {
	f := db.Filter{Scope: sc.String()}
	if sc == scope.Thread {
		f.ThreadID = threadID
	}

	raw, err := r.store.QueryKNN(ctx, collection, vector, f, k)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	events := make([]domevent.Event, 0, len(raw))
	for i := range raw {
		e, err := eventFromRow(&raw[i].Row)
		if err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
