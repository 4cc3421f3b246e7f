// Package search implements the tiered hybrid search coordinator: per tier,
// dense KNN and lexical queries run concurrently and are fused via RRF.
package search

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	domevent "github.com/engramlabs/engram/internal/domain/event"
	"github.com/engramlabs/engram/internal/domain/scope"
	domsearch "github.com/engramlabs/engram/internal/domain/search"
	"github.com/engramlabs/engram/internal/metrics"
	"github.com/engramlabs/engram/internal/sparse"
)

// Request is one search invocation.
type Request struct {
	Query    string
	Scopes   []scope.Scope // empty = all scopes in tier order
	K        int
	Project  string
	ThreadID string
}

// Options tune the coordinator.
type Options struct {
	KRRF          int
	TierTimeout   time.Duration
	MaxQueryChars int
	MaxK          int
}

// Service walks the scope tiers in priority order and accumulates fused
// results until k are collected.
type Service struct {
	repo   Repository
	colls  Opener
	embed  Embedder
	opts   Options
	logger *zap.Logger
}

// New creates a search service.
func New(repo Repository, colls Opener, embed Embedder, opts Options, logger *zap.Logger) *Service {
	if opts.KRRF <= 0 {
		opts.KRRF = DefaultKRRF
	}
	return &Service{repo: repo, colls: colls, embed: embed, opts: opts, logger: logger}
}

// Search runs one tiered hybrid search. Tier failures degrade the response
// (partial flag) instead of failing it; only an unopenable collection is an
// error.
func (s *Service) Search(ctx context.Context, req Request) (domsearch.Response, error) {
	if req.K <= 0 {
		return domsearch.Response{Results: []domsearch.Result{}}, nil
	}
	if s.opts.MaxK > 0 && req.K > s.opts.MaxK {
		req.K = s.opts.MaxK
	}
	req.Query = truncateRunes(req.Query, s.opts.MaxQueryChars)

	rt, err := s.colls.Open(ctx, req.Project)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return domsearch.Response{}, err
	}

	tiers := tierPlan(req.Scopes)
	resp := domsearch.Response{Results: make([]domsearch.Result, 0, req.K)}

	// Encode once per search. An unavailable encoder degrades every tier
	// to sparse-only.
	var vector []float32
	{
		ectx, cancel := context.WithTimeout(ctx, s.opts.TierTimeout)
		emb, err := s.embed.Embed(ectx, req.Query)
		cancel()
		if err != nil {
			s.logger.Warn("Query encoding failed, dense side disabled",
				zap.String("project", req.Project), zap.Error(err))
			resp.Partial = true
		} else {
			vector = emb.Embedding
		}
	}

	seen := make(map[string]bool, req.K)
	for _, sc := range tiers {
		if len(resp.Results) >= req.K {
			break
		}
		start := time.Now()
		results, partial := s.searchTier(ctx, rt, req, sc, vector, seen)
		metrics.SearchTierDuration.WithLabelValues(sc.String()).Observe(time.Since(start).Seconds())

		if partial {
			resp.Partial = true
		}
		for i := range results {
			if len(resp.Results) >= req.K {
				break
			}
			resp.Results = append(resp.Results, results[i])
		}
	}

	// Accumulation already follows tier order, but materialization drops
	// make the final order worth restating.
	sort.SliceStable(resp.Results, func(i, j int) bool {
		ri, rj := &resp.Results[i], &resp.Results[j]
		if ri.Scope() != rj.Scope() {
			return scope.TierRank(ri.Scope()) < scope.TierRank(rj.Scope())
		}
		if ri.Score() != rj.Score() {
			return ri.Score() > rj.Score()
		}
		return ri.ID() < rj.ID()
	})

	outcome := "ok"
	if resp.Partial {
		outcome = "partial"
	}
	metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	return resp, nil
}

// searchTier runs dense and sparse retrieval for one scope concurrently,
// fuses the rankings, and materializes the fused hits.
func (s *Service) searchTier(
	ctx context.Context, rt runtime, req Request, sc scope.Scope,
	vector []float32, seen map[string]bool,
) ([]domsearch.Result, bool) {
	tctx, cancel := context.WithTimeout(ctx, s.opts.TierTimeout)
	defer cancel()

	threadID := ""
	if sc == scope.Thread {
		threadID = req.ThreadID
	}

	var (
		denseIDs  []string
		denseByID map[string]domevent.Event
		denseErr  error
	)
	denseDone := make(chan struct{})
	if vector != nil {
		go func() {
			defer close(denseDone)
			events, err := s.repo.SearchKNN(tctx, rt.Name(), vector, sc, threadID, req.K)
			if err != nil {
				denseErr = err
				return
			}
			denseIDs = make([]string, len(events))
			denseByID = make(map[string]domevent.Event, len(events))
			for i := range events {
				denseIDs[i] = events[i].ID()
				denseByID[events[i].ID()] = events[i]
			}
		}()
	} else {
		close(denseDone)
	}

	sparseIDs := rt.Index().Query(req.Query, req.K, sparse.Filter{Scope: sc, ThreadID: threadID})
	<-denseDone

	partial := false
	if denseErr != nil {
		s.logger.Warn("Dense search failed, tier degraded to sparse",
			zap.String("collection", rt.Name()),
			zap.String("scope", sc.String()),
			zap.Error(denseErr),
		)
		partial = true
	}

	fused := fuseRRF(denseIDs, sparseIDs, s.opts.KRRF)

	results := make([]domsearch.Result, 0, len(fused))
	for _, h := range fused {
		if len(results) >= req.K {
			break
		}
		if seen[h.id] {
			continue
		}

		e, ok := denseByID[h.id]
		if !ok {
			var err error
			e, err = s.repo.Get(tctx, rt.Name(), h.id)
			if err != nil {
				// Sparse index briefly ahead of storage, or a backend
				// hiccup. Skip the hit and flag the response.
				partial = true
				continue
			}
		}

		seen[h.id] = true
		results = append(results, domsearch.New(
			e.ID(), h.score, sc, e.Text(), e.Metadata(), e.IsSummary(),
		))
	}
	return results, partial
}

// runtime is the slice of collection.Runtime the tier search needs.
type runtime interface {
	Name() string
	Index() *sparse.Index
}

// tierPlan returns the tiers to visit: the fixed priority order, optionally
// restricted to the requested scopes.
func tierPlan(requested []scope.Scope) []scope.Scope {
	if len(requested) == 0 {
		return scope.DefaultTiers()
	}
	want := make(map[scope.Scope]bool, len(requested))
	for _, sc := range requested {
		want[sc] = true
	}
	out := make([]scope.Scope, 0, len(requested))
	for _, sc := range scope.All() {
		if want[sc] {
			out = append(out, sc)
		}
	}
	return out
}

// truncateRunes cuts s to at most max runes, never splitting a rune.
func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
