package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/engramlabs/engram/internal/db"
)

var _ db.KV = (*KV)(nil)

// KV exposes plain key-value access over the same client, used for
// summarization markers and the embedding cache.
type KV struct {
	s *Store
}

// KV returns the key-value view of the store.
func (s *Store) KV() *KV {
	return &KV{s: s}
}

// Get retrieves a value by key.
func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := kv.s.b().Get().Key(kv.s.keyPrefix + key).Build()
	data, err := kv.s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// Set stores a value at the given key.
func (kv *KV) Set(ctx context.Context, key string, value []byte) error {
	cmd := kv.s.b().Set().Key(kv.s.keyPrefix + key).Value(string(value)).Build()
	if err := kv.s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// SetWithTTL stores a value with an expiration.
func (kv *KV) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := kv.s.b().Set().Key(kv.s.keyPrefix + key).Value(string(value)).Ex(ttl).Build()
	if err := kv.s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}
