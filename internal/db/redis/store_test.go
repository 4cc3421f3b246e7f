package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/engramlabs/engram/internal/db"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// --- rows.go tests ---

func TestUpsert_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "engram:c:events:ev1"
		})).
		Return(mock.Result(mock.RedisInt64(3)))

	s := NewStoreForTest(c)
	err := s.Upsert(context.Background(), "events", &db.Row{
		ID:     "ev1",
		Vector: []float32{0.1, 0.2},
		Fields: map[string]string{db.FieldScope: "thread", db.FieldText: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpsert_MissingID(t *testing.T) {
	s := NewStoreForTest(nil) // client not called
	err := s.Upsert(context.Background(), "events", &db.Row{Fields: map[string]string{}})
	if err == nil {
		t.Fatal("expected error for empty row id")
	}
}

func TestUpsert_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	err := s.Upsert(context.Background(), "events", &db.Row{ID: "ev1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestGetRow_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "engram:c:events:ev1")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			db.FieldText:  mock.RedisString("hello"),
			db.FieldScope: mock.RedisString("thread"),
			vectorField:   mock.RedisString(vectorToBytes([]float32{1, 2})),
		})))

	s := NewStoreForTest(c)
	row, err := s.Get(context.Background(), "events", "ev1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.ID != "ev1" {
		t.Errorf("expected id ev1, got %s", row.ID)
	}
	if row.Fields[db.FieldText] != "hello" {
		t.Errorf("unexpected fields: %v", row.Fields)
	}
	if _, ok := row.Fields[vectorField]; ok {
		t.Error("vector field should not leak into Fields")
	}
	if len(row.Vector) != 2 || row.Vector[0] != 1 || row.Vector[1] != 2 {
		t.Errorf("unexpected vector: %v", row.Vector)
	}
}

func TestGetRow_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "engram:c:events:missing")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "events", "missing")
	if !errors.Is(err, db.ErrRowNotFound) {
		t.Errorf("expected ErrRowNotFound, got %v", err)
	}
}

func TestDeleteRow_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "engram:c:events:ev1")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.Delete(context.Background(), "events", "ev1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.0e-3}
	got := bytesToVector(vectorToBytes(v))
	if len(got) != len(v) {
		t.Fatalf("expected %d floats, got %d", len(v), len(got))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: expected %f, got %f", i, v[i], got[i])
		}
	}
}

func TestBytesToVector_BadLength(t *testing.T) {
	if v := bytesToVector("abc"); v != nil {
		t.Errorf("expected nil for truncated input, got %v", v)
	}
}

// --- index.go tests ---

func TestEnsureCollection_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE" && cmd[1] == "engram:c:events:idx"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.EnsureCollection(context.Background(), "events", 1536); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	if err := s.EnsureCollection(context.Background(), "events", 1536); err != nil {
		t.Fatalf("existing index should not be an error, got: %v", err)
	}
}

func TestEnsureCollection_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	err := s.EnsureCollection(context.Background(), "events", 1536)
	if err == nil {
		t.Fatal("expected error")
	}
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

// --- search.go tests ---

func TestQueryKNN_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[1] == "engram:c:events:idx"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1), // total
			mock.RedisString("engram:c:events:ev1"),
			mock.RedisArray(
				mock.RedisString(distanceAlias),
				mock.RedisString("0.1"), // distance 0.1 maps to similarity 0.9
				mock.RedisString(db.FieldText),
				mock.RedisString("hello"),
			),
		)))

	s := NewStoreForTest(c)
	hits, err := s.QueryKNN(context.Background(), "events", []float32{0.1, 0.2}, db.Filter{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Row.ID != "ev1" {
		t.Errorf("expected id ev1, got %s", hits[0].Row.ID)
	}
	if hits[0].Score < 0.89 || hits[0].Score > 0.91 {
		t.Errorf("expected score ~0.9, got %f", hits[0].Score)
	}
	if _, ok := hits[0].Row.Fields[distanceAlias]; ok {
		t.Error("distance alias should be stripped from Fields")
	}
}

func TestQueryKNN_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	s := NewStoreForTest(c)
	hits, err := s.QueryKNN(context.Background(), "events", []float32{0.1}, db.Filter{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected 0 hits, got %d", len(hits))
	}
}

func TestQueryKNN_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	if _, err := s.QueryKNN(ctx, "events", nil, db.Filter{}, 10); err == nil {
		t.Error("expected error for empty vector")
	}

	hits, err := s.QueryKNN(ctx, "events", []float32{0.1}, db.Filter{}, 0)
	if err != nil || hits != nil {
		t.Errorf("k=0 should return nothing, got %v, %v", hits, err)
	}
}

func TestQueryKNN_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.QueryKNN(context.Background(), "events", []float32{0.1}, db.Filter{}, 10)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestList_SinglePage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("engram:c:events:ev1"),
			mock.RedisArray(mock.RedisString(db.FieldText), mock.RedisString("a")),
			mock.RedisString("engram:c:events:ev2"),
			mock.RedisArray(mock.RedisString(db.FieldText), mock.RedisString("b")),
		)))

	s := NewStoreForTest(c)
	rows, err := s.List(context.Background(), "events", db.Filter{Scope: "thread"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != "ev1" || rows[1].ID != "ev2" {
		t.Errorf("unexpected ids: %s, %s", rows[0].ID, rows[1].ID)
	}
}

// --- Filter building tests ---

func TestBuildFilter_Default(t *testing.T) {
	result := buildFilter(db.Filter{})
	if result != `@archived:{0}` {
		t.Errorf("unexpected filter: %q", result)
	}
}

func TestBuildFilter_AllFields(t *testing.T) {
	result := buildFilter(db.Filter{Scope: "thread", ThreadID: "th-1"})
	want := `@scope:{thread} @thread_id:{th\-1} @archived:{0}`
	if result != want {
		t.Errorf("expected %q, got %q", want, result)
	}
}

func TestBuildFilter_IncludeArchived(t *testing.T) {
	result := buildFilter(db.Filter{IncludeArchived: true})
	if result != "*" {
		t.Errorf("expected match-all, got %q", result)
	}
}

func TestEscapeTag(t *testing.T) {
	input := `th-1:a b{c}`
	escaped := escapeTag(input)
	expected := `th\-1\:a\ b\{c\}`
	if escaped != expected {
		t.Errorf("expected %q, got %q", expected, escaped)
	}
}

// --- kv.go tests ---

func TestKVGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "engram:mykey")).
		Return(mock.Result(mock.RedisBlobString("value")))

	kv := NewStoreForTest(c).KV()
	data, err := kv.Get(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "value" {
		t.Errorf("unexpected data: %s", data)
	}
}

func TestKVGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "engram:mykey")).
		Return(mock.Result(mock.RedisNil()))

	kv := NewStoreForTest(c).KV()
	_, err := kv.Get(context.Background(), "mykey")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestKVSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "engram:mykey", "myvalue")).
		Return(mock.Result(mock.RedisString("OK")))

	kv := NewStoreForTest(c).KV()
	if err := kv.Set(context.Background(), "mykey", []byte("myvalue")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestKVSetWithTTL_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET" && cmd[1] == "engram:mykey" && cmd[2] == "myvalue"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	kv := NewStoreForTest(c).KV()
	if err := kv.SetWithTTL(context.Background(), "mykey", []byte("myvalue"), 60*1e9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- helpers ---

// isDBError is a test helper for checking wrapped db.Error.
func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
