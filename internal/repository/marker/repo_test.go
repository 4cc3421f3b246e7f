package marker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/engramlabs/engram/internal/db"
)

type mockKVStore struct {
	data map[string][]byte
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte)}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func TestGet_Missing_ReturnsZeroMarker(t *testing.T) {
	repo := New(newMockKVStore())

	m, err := repo.Get(context.Background(), "default", "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !m.LastTS.IsZero() || m.LastID != "" {
		t.Errorf("marker = %+v, want zero", m)
	}
}

func TestSetGet_RoundTrip(t *testing.T) {
	repo := New(newMockKVStore())
	ctx := context.Background()

	want := Marker{
		LastTS:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LastID:  "01JD0",
		LastRun: time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC),
	}
	if err := repo.Set(ctx, "default", "t1", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := repo.Get(ctx, "default", "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.LastTS.Equal(want.LastTS) || got.LastID != want.LastID {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGet_KeysIsolatedPerThread(t *testing.T) {
	repo := New(newMockKVStore())
	ctx := context.Background()

	if err := repo.Set(ctx, "default", "t1", Marker{LastID: "a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	other, err := repo.Get(ctx, "default", "t2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if other.LastID != "" {
		t.Errorf("t2 marker leaked from t1: %+v", other)
	}
}

func TestGet_CorruptPayload_ReturnsError(t *testing.T) {
	kv := newMockKVStore()
	kv.data["marker:default:t1"] = []byte("{not json")
	repo := New(kv)

	_, err := repo.Get(context.Background(), "default", "t1")
	if err == nil {
		t.Fatal("expected error for corrupt marker")
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Errorf("err = %v, want json syntax error", err)
	}
}
