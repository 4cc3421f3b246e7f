package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/internal/domain"
	"github.com/engramlabs/engram/internal/metrics"
)

// BreakerConfig tunes the encoder circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	MinRequests      uint32
	FailureThreshold float64
}

// BreakerEmbedder short-circuits encoder calls while the provider is
// failing, surfacing domain.ErrEncoderUnavailable instead of piling up
// slow requests.
type BreakerEmbedder struct {
	inner    domain.Embedder
	cb       *gobreaker.CircuitBreaker
	provider string
	logger   *zap.Logger
}

// NewBreakerEmbedder wraps an embedder with a circuit breaker.
func NewBreakerEmbedder(
	inner domain.Embedder, provider string, cfg BreakerConfig, logger *zap.Logger,
) *BreakerEmbedder {
	settings := gobreaker.Settings{
		Name:        "encoder-" + provider,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// Caller-side cancellation is not a provider failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Encoder breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.EmbeddingBreakerState.WithLabelValues(provider).Set(breakerStateValue(to))
		},
	}

	return &BreakerEmbedder{
		inner:    inner,
		cb:       gobreaker.NewCircuitBreaker(settings),
		provider: provider,
		logger:   logger,
	}
}

// Embed runs the inner embedder through the breaker.
func (b *BreakerEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.inner.Embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.EmbeddingResult{}, fmt.Errorf("circuit open: %w", domain.ErrEncoderUnavailable)
		}
		return domain.EmbeddingResult{}, err
	}
	return out.(domain.EmbeddingResult), nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
