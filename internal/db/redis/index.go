package redis

import (
	"context"
	"strconv"

	"github.com/engramlabs/engram/internal/db"
)

// EnsureCollection creates the per-collection FT index if missing. The
// schema mirrors the persisted payload: filterable tags and numerics plus
// the HNSW vector field.
func (s *Store) EnsureCollection(ctx context.Context, name string, vectorDim int) error {
	args := []string{
		s.indexName(name),
		"ON", "HASH",
		"PREFIX", "1", s.rowKeyPrefix(name),
		"SCHEMA",
		db.FieldScope, "TAG",
		db.FieldThreadID, "TAG",
		db.FieldArchived, "TAG",
		db.FieldSummary, "TAG",
		db.FieldImportance, "NUMERIC",
		db.FieldTS, "NUMERIC",
		vectorField, "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(vectorDim),
		"DISTANCE_METRIC", "COSINE",
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return &db.Error{Op: db.OpEnsure, Err: err}
	}
	return nil
}
