// Package summarize condenses accumulated thread events into summary
// events. Trigger-only: scheduling lives outside the engine.
package summarize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/internal/chunker"
	domevent "github.com/engramlabs/engram/internal/domain/event"
	"github.com/engramlabs/engram/internal/metrics"
	"github.com/engramlabs/engram/internal/repository/marker"
	"github.com/engramlabs/engram/internal/usecase/collection"
)

// Options tune the summarizer.
type Options struct {
	// Threshold is the minimum number of unsummarized events before a
	// summary is produced.
	Threshold int
	// InputBudgetChars bounds the text handed to the condenser in one
	// call; longer input is summarized hierarchically.
	InputBudgetChars int
}

// Status reports summarization progress for one thread, consumed by an
// external scheduler.
type Status struct {
	LastRun time.Time
	LastID  string
	Pending int
}

// Service implements idempotent threshold-gated thread summarization.
type Service struct {
	repo      Repository
	markers   MarkerStore
	writer    Writer
	condenser Condenser
	opts      Options
	logger    *zap.Logger
}

// New creates a summarizer.
func New(
	repo Repository, markers MarkerStore, writer Writer,
	condenser Condenser, opts Options, logger *zap.Logger,
) *Service {
	return &Service{
		repo:      repo,
		markers:   markers,
		writer:    writer,
		condenser: condenser,
		opts:      opts,
		logger:    logger,
	}
}

// TriggerSummarize condenses the thread's unsummarized raw events into one
// summary event. Below-threshold threads are a no-op (nil, nil).
// Re-invocation with no new events never duplicates a summary.
func (s *Service) TriggerSummarize(
	ctx context.Context, project, threadID string,
) (*domevent.Event, error) {
	coll := collection.Name(project)

	mark, err := s.markers.Get(ctx, coll, threadID)
	if err != nil {
		return nil, err
	}

	pending, err := s.pendingEvents(ctx, coll, threadID, mark)
	if err != nil {
		return nil, err
	}
	if len(pending) < s.opts.Threshold {
		metrics.SummariesTotal.WithLabelValues("skipped").Inc()
		s.logger.Debug("Summarization skipped",
			zap.String("thread_id", threadID),
			zap.Int("pending", len(pending)),
			zap.Int("threshold", s.opts.Threshold),
		)
		return nil, nil
	}

	text, err := s.condense(ctx, joinTexts(pending))
	if err != nil {
		metrics.SummariesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("condense thread %s: %w", threadID, err)
	}

	sourceIDs := make([]string, len(pending))
	for i := range pending {
		sourceIDs[i] = pending[i].ID()
	}
	summary, err := domevent.NewSummary(project, threadID, text, sourceIDs)
	if err != nil {
		metrics.SummariesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	stored, err := s.writer.WriteSummary(ctx, summary)
	if err != nil {
		metrics.SummariesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	newest := pending[len(pending)-1]
	if err := s.markers.Set(ctx, coll, threadID, marker.Marker{
		LastTS:  newest.Timestamp(),
		LastID:  newest.ID(),
		LastRun: time.Now(),
	}); err != nil {
		// Worst case on a lost marker is a redundant summary next run,
		// but the stored summary itself is already durable.
		return nil, fmt.Errorf("advance marker: %w", err)
	}

	metrics.SummariesTotal.WithLabelValues("created").Inc()
	s.logger.Info("Thread summarized",
		zap.String("thread_id", threadID),
		zap.String("summary_id", stored.ID()),
		zap.Int("sources", len(sourceIDs)),
	)
	return &stored, nil
}

// Status reports how far summarization has progressed in a thread.
func (s *Service) Status(ctx context.Context, project, threadID string) (Status, error) {
	coll := collection.Name(project)

	mark, err := s.markers.Get(ctx, coll, threadID)
	if err != nil {
		return Status{}, err
	}
	pending, err := s.pendingEvents(ctx, coll, threadID, mark)
	if err != nil {
		return Status{}, err
	}
	return Status{LastRun: mark.LastRun, LastID: mark.LastID, Pending: len(pending)}, nil
}

// pendingEvents returns raw thread events past the marker, oldest first.
func (s *Service) pendingEvents(
	ctx context.Context, coll, threadID string, mark marker.Marker,
) ([]domevent.Event, error) {
	events, err := s.repo.ListThread(ctx, coll, threadID)
	if err != nil {
		return nil, fmt.Errorf("list thread %s: %w", threadID, err)
	}

	pending := events[:0:0]
	for i := range events {
		e := &events[i]
		if e.IsSummary() {
			continue
		}
		if !e.Timestamp().After(mark.LastTS) {
			continue
		}
		pending = append(pending, *e)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Timestamp().Before(pending[j].Timestamp())
	})
	return pending, nil
}

// condense summarizes text, hierarchically when it exceeds the input
// budget: chunk summaries first, then a summary of the summaries. Input is
// never silently truncated.
func (s *Service) condense(ctx context.Context, text string) (string, error) {
	if len(text) <= s.opts.InputBudgetChars {
		return s.condenser.Condense(ctx, text)
	}

	chunks := chunker.Chunk(text, chunker.Options{MaxSize: s.opts.InputBudgetChars})
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		part, err := s.condenser.Condense(ctx, c)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}

	return s.condense(ctx, strings.Join(parts, "\n\n"))
}

func joinTexts(events []domevent.Event) string {
	var sb strings.Builder
	for i := range events {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(events[i].Text())
	}
	return sb.String()
}
