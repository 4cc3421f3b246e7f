// Package collection manages per-project collection runtimes: the storage
// collection, its lexical index and the write serialization point.
package collection

import (
	"strings"
	"sync"
	"time"

	"github.com/engramlabs/engram/internal/sparse"
)

// Runtime is the in-process state of one open collection. Writers hold the
// runtime lock while assigning identity and persisting, which keeps
// timestamps monotonic per collection.
type Runtime struct {
	name string

	mu     sync.Mutex
	lastTS time.Time
	index  *sparse.Index
}

// NewRuntime creates a detached runtime with an empty index.
func NewRuntime(name string) *Runtime {
	return &Runtime{name: name, index: sparse.NewIndex()}
}

// Name returns the storage collection name.
func (r *Runtime) Name() string { return r.name }

// Index returns the collection's lexical index.
func (r *Runtime) Index() *sparse.Index { return r.index }

// Lock serializes writers of this collection.
func (r *Runtime) Lock() { r.mu.Lock() }

// Unlock releases the writer lock.
func (r *Runtime) Unlock() { r.mu.Unlock() }

// NextTimestamp returns now, bumped forward if the clock did not advance
// past the previous write. Callers must hold the runtime lock.
func (r *Runtime) NextTimestamp(now time.Time) time.Time {
	if !now.After(r.lastTS) {
		now = r.lastTS.Add(time.Nanosecond)
	}
	r.lastTS = now
	return now
}

// Name maps a project identifier to its storage collection name. The empty
// project shares the "default" collection.
func Name(project string) string {
	if project == "" {
		return "default"
	}
	return sanitize(project)
}

// sanitize keeps collection names within the charset accepted by index
// names on all drivers.
func sanitize(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
