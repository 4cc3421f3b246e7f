package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/engramlabs/engram/internal/db"
)

// vectorField is the hash field holding the binary embedding.
const vectorField = "vector"

// Upsert writes payload and vector as a single HSET (one row, atomic).
func (s *Store) Upsert(ctx context.Context, collection string, row *db.Row) error {
	if row.ID == "" {
		return fmt.Errorf("row id is required")
	}
	key := s.rowKey(collection, row.ID)

	hset := s.b().Hset().Key(key).FieldValue()
	hset = hset.FieldValue(vectorField, vectorToBytes(row.Vector))
	for f, v := range row.Fields {
		hset = hset.FieldValue(f, v)
	}

	if err := s.do(ctx, hset.Build()).Error(); err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}
	return nil
}

// Get returns one row by id.
func (s *Store) Get(ctx context.Context, collection, id string) (*db.Row, error) {
	key := s.rowKey(collection, id)
	m, err := s.do(ctx, s.b().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpGetRow, Err: err}
	}
	if len(m) == 0 {
		return nil, db.ErrRowNotFound
	}
	return rowFromHash(id, m), nil
}

// Delete removes one row. Missing rows are not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	key := s.rowKey(collection, id)
	if err := s.do(ctx, s.b().Del().Key(key).Build()).Error(); err != nil {
		return &db.Error{Op: db.OpDelete, Err: err}
	}
	return nil
}

// rowFromHash converts a flat hash map into a db.Row.
func rowFromHash(id string, m map[string]string) *db.Row {
	row := &db.Row{ID: id, Fields: make(map[string]string, len(m))}
	for f, v := range m {
		if f == vectorField {
			row.Vector = bytesToVector(v)
			continue
		}
		row.Fields[f] = v
	}
	return row
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
