// Package write implements the guarded write path: validation, secret
// policy enforcement, encoding and the serialized persist step.
package write

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/internal/domain"
	domevent "github.com/engramlabs/engram/internal/domain/event"
	"github.com/engramlabs/engram/internal/metrics"
	"github.com/engramlabs/engram/internal/usecase/collection"
)

// Repository persists events.
type Repository interface {
	Upsert(ctx context.Context, collection string, e *domevent.Event) error
}

// Opener provides collection runtimes.
type Opener interface {
	Open(ctx context.Context, project string) (*collection.Runtime, error)
}

// Embedder vectorizes event text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Request is one write invocation.
type Request struct {
	Scope      string
	Project    string
	ThreadID   string
	Text       string
	Metadata   map[string]string
	Importance *float64
}

// Service validates, scans and persists memory events.
type Service struct {
	repo   Repository
	colls  Opener
	embed  Embedder
	logger *zap.Logger
}

// New creates a write service.
func New(repo Repository, colls Opener, embed Embedder, logger *zap.Logger) *Service {
	return &Service{repo: repo, colls: colls, embed: embed, logger: logger}
}

// Write runs the full guarded write path and returns the stored event.
// Policy violations and validation errors leave no trace in storage.
func (s *Service) Write(ctx context.Context, req Request) (domevent.Event, error) {
	e, err := domevent.New(req.Scope, req.Project, req.ThreadID, req.Text, req.Metadata, req.Importance)
	if err != nil {
		metrics.WritesTotal.WithLabelValues("rejected").Inc()
		return domevent.Event{}, err
	}
	if err := s.enforcePolicy(&e); err != nil {
		metrics.WritesTotal.WithLabelValues("rejected").Inc()
		return domevent.Event{}, err
	}
	return s.persist(ctx, e)
}

// WriteSummary persists a summarizer-produced event through the same policy
// gate as caller writes.
func (s *Service) WriteSummary(ctx context.Context, e domevent.Event) (domevent.Event, error) {
	if err := s.enforcePolicy(&e); err != nil {
		metrics.WritesTotal.WithLabelValues("rejected").Inc()
		return domevent.Event{}, err
	}
	return s.persist(ctx, e)
}

func (s *Service) enforcePolicy(e *domevent.Event) error {
	if name, ok := scanText(e.Text()); ok {
		s.logger.Info("Write rejected by policy",
			zap.String("scope", e.Scope().String()),
			zap.String("detector", name),
		)
		return domain.NewPolicyViolation(name)
	}
	if name, ok := scanMetadata(e.Metadata()); ok {
		s.logger.Info("Write rejected by policy",
			zap.String("scope", e.Scope().String()),
			zap.String("detector", name),
		)
		return domain.NewPolicyViolation(name)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, e domevent.Event) (domevent.Event, error) {
	rt, err := s.colls.Open(ctx, e.Project())
	if err != nil {
		metrics.WritesTotal.WithLabelValues("error").Inc()
		return domevent.Event{}, err
	}

	// Encoding happens outside the collection lock: it is the slow step
	// and needs no serialization.
	emb, err := s.embed.Embed(ctx, embedInput(&e))
	if err != nil {
		metrics.WritesTotal.WithLabelValues("error").Inc()
		return domevent.Event{}, fmt.Errorf("encode event: %w", err)
	}

	rt.Lock()
	defer rt.Unlock()

	ts := rt.NextTimestamp(time.Now())
	id := ulid.MustNew(ulid.Timestamp(ts), rand.Reader).String()
	e = e.WithIdentity(id, ts).WithVector(emb.Embedding)

	if err := s.repo.Upsert(ctx, rt.Name(), &e); err != nil {
		metrics.WritesTotal.WithLabelValues("error").Inc()
		return domevent.Event{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	// Index only after the row is durable, so sparse hits always
	// materialize.
	rt.Index().Add(e.ID(), e.Text(), e.Scope(), e.ThreadID())

	metrics.WritesTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("Event written",
		zap.String("id", e.ID()),
		zap.String("collection", rt.Name()),
		zap.String("scope", e.Scope().String()),
		zap.Bool("summary", e.IsSummary()),
	)
	return e, nil
}

// embedInput picks the text to encode. Reference events may carry an empty
// body; their link target still gets a vector.
func embedInput(e *domevent.Event) string {
	if e.Text() != "" {
		return e.Text()
	}
	return e.Metadata()[domevent.RefKey]
}
