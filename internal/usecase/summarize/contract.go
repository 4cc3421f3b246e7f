package summarize

import (
	"context"

	domevent "github.com/engramlabs/engram/internal/domain/event"
	"github.com/engramlabs/engram/internal/repository/marker"
)

// Condenser turns raw text into a shorter summary via an LLM provider.
type Condenser interface {
	Condense(ctx context.Context, text string) (string, error)
}

// Repository reads thread events.
type Repository interface {
	ListThread(ctx context.Context, collection, threadID string) ([]domevent.Event, error)
}

// MarkerStore persists per-thread summarization progress.
type MarkerStore interface {
	Get(ctx context.Context, collection, threadID string) (marker.Marker, error)
	Set(ctx context.Context, collection, threadID string, m marker.Marker) error
}

// Writer persists summary events through the policy gate.
type Writer interface {
	WriteSummary(ctx context.Context, e domevent.Event) (domevent.Event, error)
}
