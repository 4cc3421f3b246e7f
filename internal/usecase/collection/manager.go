package collection

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	domevent "github.com/engramlabs/engram/internal/domain/event"
)

// Repository is the storage surface the manager needs to prepare and seed
// a collection.
type Repository interface {
	EnsureCollection(ctx context.Context, name string, vectorDim int) error
	ListAll(ctx context.Context, collection string) ([]domevent.Event, error)
}

// Manager opens collections on demand and keeps one Runtime per collection
// for the lifetime of the process. Opening seeds the lexical index from
// storage so sparse search covers pre-existing events after a restart.
type Manager struct {
	repo      Repository
	vectorDim int
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// entry latches one collection's initialization so seeding a large
// collection never blocks opens of other collections.
type entry struct {
	once sync.Once
	rt   *Runtime
	err  error
}

// NewManager creates a collection manager.
func NewManager(repo Repository, vectorDim int, logger *zap.Logger) *Manager {
	return &Manager{
		repo:      repo,
		vectorDim: vectorDim,
		logger:    logger,
		entries:   make(map[string]*entry),
	}
}

// Open returns the runtime for a project's collection, creating and
// seeding it on first use. Concurrent first opens of the same collection
// share one initialization; a failed initialization is retried by the
// next caller.
func (m *Manager) Open(ctx context.Context, project string) (*Runtime, error) {
	name := Name(project)

	m.mu.Lock()
	e, ok := m.entries[name]
	if !ok {
		e = &entry{}
		m.entries[name] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.rt, e.err = m.open(ctx, name)
		if e.err != nil {
			m.mu.Lock()
			delete(m.entries, name)
			m.mu.Unlock()
		}
	})
	return e.rt, e.err
}

// open prepares and seeds one collection. Runs outside the manager lock.
func (m *Manager) open(ctx context.Context, name string) (*Runtime, error) {
	if err := m.repo.EnsureCollection(ctx, name, m.vectorDim); err != nil {
		return nil, fmt.Errorf("ensure collection %s: %w", name, err)
	}

	rt := NewRuntime(name)
	if err := m.seed(ctx, rt); err != nil {
		return nil, err
	}
	return rt, nil
}

// seed rebuilds the lexical index and the timestamp high-water mark from
// everything already stored.
func (m *Manager) seed(ctx context.Context, rt *Runtime) error {
	events, err := m.repo.ListAll(ctx, rt.name)
	if err != nil {
		return fmt.Errorf("seed collection %s: %w", rt.name, err)
	}

	indexed := 0
	for i := range events {
		e := &events[i]
		if e.Timestamp().After(rt.lastTS) {
			rt.lastTS = e.Timestamp()
		}
		if e.Archived() {
			continue
		}
		rt.index.Add(e.ID(), e.Text(), e.Scope(), e.ThreadID())
		indexed++
	}

	m.logger.Info("Collection opened",
		zap.String("collection", rt.name),
		zap.Int("events_total", len(events)),
		zap.Int("events_indexed", indexed),
	)
	return nil
}
