// Package db defines the storage contracts consumed by the repositories.
// Two drivers implement them: redis (rueidis, FT.SEARCH KNN) for production
// and chromem (embedded, in-memory) for local and test use.
package db

import (
	"context"
	"time"
)

// Payload field names shared by all drivers. One event maps 1:1 to one
// stored vector+payload row.
const (
	FieldScope      = "scope"
	FieldThreadID   = "thread_id"
	FieldProject    = "project"
	FieldText       = "text"
	FieldMetadata   = "metadata"
	FieldTS         = "ts"
	FieldImportance = "importance"
	FieldSummary    = "summary"
	FieldSourceIDs  = "source_ids"
	FieldArchived   = "archived"
)

// Row is one stored vector+payload row.
type Row struct {
	ID     string
	Vector []float32
	Fields map[string]string
}

// Hit is a row with a dense similarity score (higher = more similar).
type Hit struct {
	Row   Row
	Score float64
}

// Filter restricts queries to exact payload matches. Archived rows are
// excluded unless IncludeArchived is set.
type Filter struct {
	Scope           string
	ThreadID        string
	IncludeArchived bool
}

// VectorStore persists vector+payload rows per collection.
type VectorStore interface {
	// EnsureCollection prepares a collection (index creation for redis,
	// collection creation for chromem). Idempotent.
	EnsureCollection(ctx context.Context, name string, vectorDim int) error

	// Upsert writes vector and payload as one atomic row.
	Upsert(ctx context.Context, collection string, row *Row) error

	Get(ctx context.Context, collection, id string) (*Row, error)
	Delete(ctx context.Context, collection, id string) error

	// List returns all rows matching the filter, unordered.
	List(ctx context.Context, collection string, f Filter) ([]Row, error)

	// QueryKNN returns up to k nearest rows matching the filter, most
	// similar first.
	QueryKNN(ctx context.Context, collection string, vector []float32, f Filter, k int) ([]Hit, error)

	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}

// KV is a small key-value surface used for summarization markers and the
// store-backed embedding cache.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
