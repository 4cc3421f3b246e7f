// Package chromem implements db.VectorStore over the embedded, pure Go
// chromem-go database. Useful for local development and tests where no
// Redis is available; data lives in process memory.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/engramlabs/engram/internal/db"
)

var _ db.VectorStore = (*Store)(nil)

// Store keeps one chromem collection per engram collection. chromem has
// no way to enumerate documents, so the store tracks written ids itself;
// the database is in-memory, so the tracked set is complete.
type Store struct {
	db *chromem.DB

	mu    sync.RWMutex
	colls map[string]*collection
}

type collection struct {
	col *chromem.Collection
	ids map[string]struct{}
}

// NewStore creates an in-memory chromem store.
func NewStore() *Store {
	return &Store{
		db:    chromem.NewDB(),
		colls: make(map[string]*collection),
	}
}

// EnsureCollection creates the collection if missing. The vector
// dimension is implied by the first written embedding.
func (s *Store) EnsureCollection(_ context.Context, name string, _ int) error {
	_, err := s.get(name, true)
	return err
}

func (s *Store) get(name string, create bool) (*collection, error) {
	s.mu.RLock()
	c, ok := s.colls[name]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}
	if !create {
		return nil, db.ErrRowNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.colls[name]; ok {
		return c, nil
	}

	col, err := s.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, &db.Error{Op: db.OpEnsure, Err: err}
	}
	c = &collection{col: col, ids: make(map[string]struct{})}
	s.colls[name] = c
	return c, nil
}

// Upsert writes one row. Re-adding an existing id replaces the document.
func (s *Store) Upsert(ctx context.Context, collectionName string, row *db.Row) error {
	if row.ID == "" {
		return fmt.Errorf("row id is required")
	}
	c, err := s.get(collectionName, true)
	if err != nil {
		return err
	}

	meta := make(map[string]string, len(row.Fields))
	for f, v := range row.Fields {
		meta[f] = v
	}

	doc := chromem.Document{
		ID:        row.ID,
		Content:   row.Fields[db.FieldText],
		Embedding: row.Vector,
		Metadata:  meta,
	}
	if err := c.col.AddDocument(ctx, doc); err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}

	s.mu.Lock()
	c.ids[row.ID] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Get returns one row by id.
func (s *Store) Get(ctx context.Context, collectionName, id string) (*db.Row, error) {
	c, err := s.get(collectionName, false)
	if err != nil {
		return nil, err
	}
	doc, err := c.col.GetByID(ctx, id)
	if err != nil {
		return nil, db.ErrRowNotFound
	}
	return rowFromDocument(doc), nil
}

// Delete removes one row. Missing rows are not an error.
func (s *Store) Delete(ctx context.Context, collectionName, id string) error {
	c, err := s.get(collectionName, false)
	if err != nil {
		return nil
	}
	if err := c.col.Delete(ctx, nil, nil, id); err != nil {
		return &db.Error{Op: db.OpDelete, Err: err}
	}
	s.mu.Lock()
	delete(c.ids, id)
	s.mu.Unlock()
	return nil
}

// List returns all rows matching the filter by walking the tracked ids.
func (s *Store) List(ctx context.Context, collectionName string, f db.Filter) ([]db.Row, error) {
	c, err := s.get(collectionName, false)
	if err != nil {
		return nil, nil
	}

	s.mu.RLock()
	ids := make([]string, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var out []db.Row
	for _, id := range ids {
		doc, err := c.col.GetByID(ctx, id)
		if err != nil {
			continue
		}
		row := rowFromDocument(doc)
		if matchesFilter(row, f) {
			out = append(out, *row)
		}
	}
	return out, nil
}

// QueryKNN runs a vector similarity query. chromem rejects nResults above
// the collection size, so k is clamped and the query retried on the
// boundary error.
func (s *Store) QueryKNN(
	ctx context.Context, collectionName string, vector []float32, f db.Filter, k int,
) ([]db.Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	c, err := s.get(collectionName, false)
	if err != nil {
		return nil, nil
	}

	where := whereClause(f)

	// chromem applies the where filter before the nResults bound, so ask
	// for at most Count() and back off while it still complains.
	limit := k
	if n := c.col.Count(); n < limit {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	var results []chromem.Result
	for ; limit >= 1; limit-- {
		results, err = c.col.QueryEmbedding(ctx, vector, limit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}

	hits := make([]db.Hit, 0, len(results))
	for _, r := range results {
		row := db.Row{ID: r.ID, Vector: r.Embedding, Fields: copyMeta(r.Metadata)}
		hits = append(hits, db.Hit{Row: row, Score: float64(r.Similarity)})
	}
	return hits, nil
}

// Ping always succeeds; the database is in-process.
func (s *Store) Ping(context.Context) error { return nil }

// WaitForReady always succeeds; the database is in-process.
func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

// Close is a no-op; chromem keeps everything in memory.
func (s *Store) Close() {}

func rowFromDocument(doc chromem.Document) *db.Row {
	return &db.Row{ID: doc.ID, Vector: doc.Embedding, Fields: copyMeta(doc.Metadata)}
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for f, v := range m {
		out[f] = v
	}
	return out
}

// whereClause maps a db.Filter onto chromem's exact-match metadata filter.
func whereClause(f db.Filter) map[string]string {
	where := make(map[string]string)
	if f.Scope != "" {
		where[db.FieldScope] = f.Scope
	}
	if f.ThreadID != "" {
		where[db.FieldThreadID] = f.ThreadID
	}
	if !f.IncludeArchived {
		where[db.FieldArchived] = "0"
	}
	return where
}

func matchesFilter(row *db.Row, f db.Filter) bool {
	if f.Scope != "" && row.Fields[db.FieldScope] != f.Scope {
		return false
	}
	if f.ThreadID != "" && row.Fields[db.FieldThreadID] != f.ThreadID {
		return false
	}
	if !f.IncludeArchived && row.Fields[db.FieldArchived] != "0" {
		return false
	}
	return true
}

func isInsufficientDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") ||
		strings.Contains(msg, "number of documents")
}
