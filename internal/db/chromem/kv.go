package chromem

import (
	"context"
	"sync"
	"time"

	"github.com/engramlabs/engram/internal/db"
)

var _ db.KV = (*KV)(nil)

// KV is an in-process key-value companion to the embedded store, holding
// summarization markers and cached embeddings. TTLs are enforced lazily
// on read.
type KV struct {
	mu    sync.RWMutex
	items map[string]kvItem
}

type kvItem struct {
	value     []byte
	expiresAt time.Time
}

// NewKV creates an empty in-memory key-value store.
func NewKV() *KV {
	return &KV{items: make(map[string]kvItem)}
}

// Get retrieves a value by key.
func (kv *KV) Get(_ context.Context, key string) ([]byte, error) {
	kv.mu.RLock()
	item, ok := kv.items[key]
	kv.mu.RUnlock()
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		kv.mu.Lock()
		delete(kv.items, key)
		kv.mu.Unlock()
		return nil, db.ErrKeyNotFound
	}
	return item.value, nil
}

// Set stores a value at the given key.
func (kv *KV) Set(_ context.Context, key string, value []byte) error {
	kv.mu.Lock()
	kv.items[key] = kvItem{value: value}
	kv.mu.Unlock()
	return nil
}

// SetWithTTL stores a value with an expiration.
func (kv *KV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	kv.mu.Lock()
	kv.items[key] = kvItem{value: value, expiresAt: time.Now().Add(ttl)}
	kv.mu.Unlock()
	return nil
}
