package search

import (
	"context"

	"github.com/engramlabs/engram/internal/domain"
	domevent "github.com/engramlabs/engram/internal/domain/event"
	"github.com/engramlabs/engram/internal/domain/scope"
	"github.com/engramlabs/engram/internal/usecase/collection"
)

// Repository defines the storage contract for search operations.
type Repository interface {
	// SearchKNN returns up to k non-archived events of one scope ordered
	// most similar first.
	SearchKNN(
		ctx context.Context, collection string, vector []float32,
		sc scope.Scope, threadID string, k int,
	) ([]domevent.Event, error)

	// Get returns one event by id (used to materialize sparse-only hits).
	Get(ctx context.Context, collection, id string) (domevent.Event, error)
}

// Opener provides collection runtimes.
type Opener interface {
	Open(ctx context.Context, project string) (*collection.Runtime, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
