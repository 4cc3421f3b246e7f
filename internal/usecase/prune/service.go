// Package prune archives low-importance, aged-out events. Trigger-only:
// scheduling lives outside the engine.
package prune

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	domevent "github.com/engramlabs/engram/internal/domain/event"
	"github.com/engramlabs/engram/internal/domain/scope"
	"github.com/engramlabs/engram/internal/metrics"
	"github.com/engramlabs/engram/internal/usecase/collection"
)

// Repository reads and mutates stored events.
type Repository interface {
	ListScope(ctx context.Context, collection string, sc scope.Scope) ([]domevent.Event, error)
	Upsert(ctx context.Context, collection string, e *domevent.Event) error
	Get(ctx context.Context, collection, id string) (domevent.Event, error)
	Delete(ctx context.Context, collection, id string) error
}

// Opener provides collection runtimes.
type Opener interface {
	Open(ctx context.Context, project string) (*collection.Runtime, error)
}

// Options tune the pruner defaults.
type Options struct {
	Threshold float64
	Retention time.Duration
}

// Service implements importance-based archival and explicit hard deletion.
type Service struct {
	repo   Repository
	colls  Opener
	opts   Options
	logger *zap.Logger
}

// New creates a pruner.
func New(repo Repository, colls Opener, opts Options, logger *zap.Logger) *Service {
	return &Service{repo: repo, colls: colls, opts: opts, logger: logger}
}

// TriggerPrune archives events of one scope whose importance is below the
// threshold and whose age exceeds the retention window. Objective-scope
// events and summaries are exempt. Returns the number archived.
func (s *Service) TriggerPrune(
	ctx context.Context, project string, sc scope.Scope, threshold *float64,
) (int, error) {
	// Objectives persist until completion regardless of score.
	if sc == scope.Objective {
		return 0, nil
	}

	th := s.opts.Threshold
	if threshold != nil {
		th = *threshold
	}

	rt, err := s.colls.Open(ctx, project)
	if err != nil {
		return 0, err
	}

	events, err := s.repo.ListScope(ctx, rt.Name(), sc)
	if err != nil {
		return 0, fmt.Errorf("list scope %s: %w", sc, err)
	}

	cutoff := time.Now().Add(-s.opts.Retention)
	archived := 0
	for i := range events {
		e := &events[i]
		if e.IsSummary() {
			continue
		}
		if e.Importance() >= th || e.Timestamp().After(cutoff) {
			continue
		}

		if err := s.archive(ctx, rt, e); err != nil {
			return archived, err
		}
		archived++
	}

	metrics.EventsPrunedTotal.Add(float64(archived))
	s.logger.Info("Prune completed",
		zap.String("collection", rt.Name()),
		zap.String("scope", sc.String()),
		zap.Float64("threshold", th),
		zap.Int("archived", archived),
	)
	return archived, nil
}

// archive soft-deletes one event: flips the payload flag and drops it from
// the sparse index, under the collection write mutex.
func (s *Service) archive(ctx context.Context, rt *collection.Runtime, e *domevent.Event) error {
	rt.Lock()
	defer rt.Unlock()

	off := e.AsArchived()
	if err := s.repo.Upsert(ctx, rt.Name(), &off); err != nil {
		return fmt.Errorf("archive event %s: %w", e.ID(), err)
	}
	rt.Index().Remove(e.ID())
	return nil
}

// HardDelete permanently removes one event. Explicit operation only; the
// pruner never hard-deletes on its own.
func (s *Service) HardDelete(ctx context.Context, project, id string) error {
	rt, err := s.colls.Open(ctx, project)
	if err != nil {
		return err
	}

	if _, err := s.repo.Get(ctx, rt.Name(), id); err != nil {
		return err
	}

	rt.Lock()
	defer rt.Unlock()

	if err := s.repo.Delete(ctx, rt.Name(), id); err != nil {
		return fmt.Errorf("hard delete event %s: %w", id, err)
	}
	rt.Index().Remove(id)

	s.logger.Info("Event hard-deleted",
		zap.String("collection", rt.Name()),
		zap.String("id", id),
	)
	return nil
}
