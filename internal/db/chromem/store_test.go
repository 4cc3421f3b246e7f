package chromem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/engramlabs/engram/internal/db"
)

func newRow(id, scope, threadID, text string, vector []float32) *db.Row {
	return &db.Row{
		ID:     id,
		Vector: vector,
		Fields: map[string]string{
			db.FieldScope:    scope,
			db.FieldThreadID: threadID,
			db.FieldText:     text,
			db.FieldArchived: "0",
		},
	}
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "events", 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.EnsureCollection(ctx, "events", 4); err != nil {
		t.Fatalf("second ensure should succeed: %v", err)
	}
}

func TestUpsertGet_RoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	row := newRow("ev1", "thread", "th-1", "hello world", []float32{1, 0, 0})
	if err := s.Upsert(ctx, "events", row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "events", "ev1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "ev1" {
		t.Errorf("expected id ev1, got %s", got.ID)
	}
	if got.Fields[db.FieldText] != "hello world" {
		t.Errorf("unexpected text: %q", got.Fields[db.FieldText])
	}
	if got.Fields[db.FieldScope] != "thread" {
		t.Errorf("unexpected scope: %q", got.Fields[db.FieldScope])
	}
}

func TestUpsert_MissingID(t *testing.T) {
	s := NewStore()
	err := s.Upsert(context.Background(), "events", &db.Row{Vector: []float32{1}})
	if err == nil {
		t.Fatal("expected error for empty row id")
	}
}

func TestUpsert_ReplacesExisting(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.Upsert(ctx, "events", newRow("ev1", "thread", "th-1", "first", []float32{1, 0})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Upsert(ctx, "events", newRow("ev1", "thread", "th-1", "second", []float32{0, 1})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "events", "ev1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Fields[db.FieldText] != "second" {
		t.Errorf("expected replacement, got %q", got.Fields[db.FieldText])
	}
}

func TestGet_NotFound(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "events", "missing"); !errors.Is(err, db.ErrRowNotFound) {
		t.Errorf("expected ErrRowNotFound, got %v", err)
	}

	// Collection exists but the id does not.
	if err := s.Upsert(ctx, "events", newRow("ev1", "thread", "", "x", []float32{1})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get(ctx, "events", "missing"); !errors.Is(err, db.ErrRowNotFound) {
		t.Errorf("expected ErrRowNotFound, got %v", err)
	}
}

func TestDelete_RemovesRow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.Upsert(ctx, "events", newRow("ev1", "thread", "", "x", []float32{1})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Delete(ctx, "events", "ev1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get(ctx, "events", "ev1"); !errors.Is(err, db.ErrRowNotFound) {
		t.Errorf("expected ErrRowNotFound after delete, got %v", err)
	}
}

func TestDelete_MissingIsNoError(t *testing.T) {
	s := NewStore()
	if err := s.Delete(context.Background(), "nocollection", "ev1"); err != nil {
		t.Fatalf("deleting from a missing collection should be a no-op, got: %v", err)
	}
}

func TestList_Filters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	rows := []*db.Row{
		newRow("ev1", "thread", "th-1", "a", []float32{1, 0}),
		newRow("ev2", "thread", "th-2", "b", []float32{0, 1}),
		newRow("ev3", "project", "", "c", []float32{1, 1}),
	}
	archived := newRow("ev4", "thread", "th-1", "d", []float32{0.5, 0.5})
	archived.Fields[db.FieldArchived] = "1"
	rows = append(rows, archived)

	for _, row := range rows {
		if err := s.Upsert(ctx, "events", row); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := s.List(ctx, "events", db.Filter{Scope: "thread", ThreadID: "th-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ev1" {
		t.Fatalf("expected [ev1], got %v", got)
	}

	got, err = s.List(ctx, "events", db.Filter{Scope: "thread", ThreadID: "th-1", IncludeArchived: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected archived row included, got %d rows", len(got))
	}

	got, err = s.List(ctx, "events", db.Filter{Scope: "project"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ev3" {
		t.Errorf("expected [ev3], got %v", got)
	}
}

func TestList_MissingCollection(t *testing.T) {
	s := NewStore()
	got, err := s.List(context.Background(), "nocollection", db.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestQueryKNN_OrdersBySimilarity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, row := range []*db.Row{
		newRow("near", "thread", "th-1", "near", []float32{1, 0, 0}),
		newRow("mid", "thread", "th-1", "mid", []float32{0.7, 0.7, 0}),
		newRow("far", "thread", "th-1", "far", []float32{0, 0, 1}),
	} {
		if err := s.Upsert(ctx, "events", row); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	hits, err := s.QueryKNN(ctx, "events", []float32{1, 0, 0}, db.Filter{}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Row.ID != "near" {
		t.Errorf("expected near first, got %s", hits[0].Row.ID)
	}
	if hits[2].Row.ID != "far" {
		t.Errorf("expected far last, got %s", hits[2].Row.ID)
	}
	if hits[0].Score < hits[1].Score || hits[1].Score < hits[2].Score {
		t.Errorf("scores not descending: %v", hits)
	}
}

func TestQueryKNN_KAboveCount(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.Upsert(ctx, "events", newRow("ev1", "thread", "th-1", "x", []float32{1, 0})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hits, err := s.QueryKNN(ctx, "events", []float32{1, 0}, db.Filter{}, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 hit, got %d", len(hits))
	}
}

func TestQueryKNN_FilterByThread(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, row := range []*db.Row{
		newRow("ev1", "thread", "th-1", "a", []float32{1, 0}),
		newRow("ev2", "thread", "th-2", "b", []float32{1, 0}),
	} {
		if err := s.Upsert(ctx, "events", row); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	hits, err := s.QueryKNN(ctx, "events", []float32{1, 0}, db.Filter{ThreadID: "th-1"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Row.ID != "ev1" {
		t.Fatalf("expected [ev1], got %v", hits)
	}
}

func TestQueryKNN_MissingCollection(t *testing.T) {
	s := NewStore()
	hits, err := s.QueryKNN(context.Background(), "nocollection", []float32{1}, db.Filter{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != nil {
		t.Errorf("expected nil, got %v", hits)
	}
}

func TestQueryKNN_Validation(t *testing.T) {
	s := NewStore()
	if _, err := s.QueryKNN(context.Background(), "events", nil, db.Filter{}, 10); err == nil {
		t.Error("expected error for empty vector")
	}
}

// --- kv.go tests ---

func TestKV_SetGet(t *testing.T) {
	kv := NewKV()
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("expected v, got %s", got)
	}
}

func TestKV_GetMissing(t *testing.T) {
	kv := NewKV()
	if _, err := kv.Get(context.Background(), "missing"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestKV_TTLExpiry(t *testing.T) {
	kv := NewKV()
	ctx := context.Background()

	if err := kv.SetWithTTL(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := kv.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected expiry, got %v", err)
	}
}

func TestKV_SetOverwritesTTL(t *testing.T) {
	kv := NewKV()
	ctx := context.Background()

	if err := kv.SetWithTTL(ctx, "k", []byte("v1"), time.Nanosecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := kv.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("expected v2, got %s", got)
	}
}
