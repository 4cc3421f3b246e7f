package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/db"
	dbChromem "github.com/engramlabs/engram/internal/db/chromem"
	dbRedis "github.com/engramlabs/engram/internal/db/redis"
	"github.com/engramlabs/engram/internal/domain"
	logpkg "github.com/engramlabs/engram/internal/logger"
	"github.com/engramlabs/engram/internal/metrics"
	"github.com/engramlabs/engram/internal/repository/embcache"
	eventrepo "github.com/engramlabs/engram/internal/repository/event"
	markerrepo "github.com/engramlabs/engram/internal/repository/marker"
	anthropicT "github.com/engramlabs/engram/internal/transport/anthropic"
	chiTransport "github.com/engramlabs/engram/internal/transport/chi"
	openaiT "github.com/engramlabs/engram/internal/transport/openai"
	collectionuc "github.com/engramlabs/engram/internal/usecase/collection"
	embeddinguc "github.com/engramlabs/engram/internal/usecase/embedding"
	healthuc "github.com/engramlabs/engram/internal/usecase/health"
	pruneuc "github.com/engramlabs/engram/internal/usecase/prune"
	searchuc "github.com/engramlabs/engram/internal/usecase/search"
	summarizeuc "github.com/engramlabs/engram/internal/usecase/summarize"
	writeuc "github.com/engramlabs/engram/internal/usecase/write"
	"github.com/engramlabs/engram/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting engram API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Strings("store_addrs", cfg.Store.Addrs),
	)

	// Create the vector store and key-value surface based on driver
	var store db.VectorStore
	var kv db.KV
	switch cfg.Store.Driver {
	case "redis":
		rs, rerr := dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.Store.Addrs,
			Password:  cfg.Store.Password,
			KeyPrefix: cfg.Store.KeyPrefix,
		})
		if rerr != nil {
			logger.Fatal("Failed to create redis store", zap.Error(rerr))
		}
		store = rs
		kv = rs.KV()
	case "chromem":
		store = dbChromem.NewStore()
		kv = dbChromem.NewKV()
	default:
		logger.Fatal("Unknown store driver", zap.String("driver", cfg.Store.Driver))
	}
	defer store.Close()

	// Wait for the store to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Store.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Store not ready", zap.Error(err))
	}
	logger.Info("Connected to store")

	// Register metrics explicitly (no init())
	metrics.Register()

	// Build encoder chain at the composition root.
	embedder, closeEmbedder := buildEmbedder(cfg, kv, logger)
	defer closeEmbedder()
	logger.Info("Encoder created",
		zap.String("provider", cfg.Encoder.ProviderName),
		zap.String("model", cfg.Encoder.Model),
		zap.Int("dimensions", cfg.Encoder.Dimensions),
	)

	// Repositories (domain-native, no adapters)
	eventRepo := eventrepo.New(store)
	markerRepo := markerrepo.New(kv)

	// Collection manager seeds the lexical index per collection on demand
	manager := collectionuc.NewManager(eventRepo, cfg.Encoder.Dimensions, logger)

	// Use case services
	writeSvc := writeuc.New(eventRepo, manager, embedder, logger)
	searchSvc := searchuc.New(eventRepo, manager, embedder, searchuc.Options{
		KRRF:          cfg.Search.KRRF,
		TierTimeout:   time.Duration(cfg.Search.TierTimeoutMS) * time.Millisecond,
		MaxQueryChars: cfg.Search.MaxQueryChars,
		MaxK:          cfg.Search.MaxK,
	}, logger)

	condenser := buildCondenser(cfg, logger)
	summarizeSvc := summarizeuc.New(eventRepo, markerRepo, writeSvc, condenser, summarizeuc.Options{
		Threshold:        cfg.Summarize.Threshold,
		InputBudgetChars: cfg.Summarize.InputBudgetChars,
	}, logger)

	pruneSvc := pruneuc.New(eventRepo, manager, pruneuc.Options{
		Threshold: cfg.Prune.Threshold,
		Retention: time.Duration(cfg.Prune.RetentionHours) * time.Hour,
	}, logger)

	healthSvc := healthuc.New(store, newEncoderHealthChecker(embedder))

	// Chi server
	server := chiTransport.NewServer(searchSvc, writeSvc, summarizeSvc, pruneSvc, healthSvc, logger).
		WithDefaultK(cfg.Search.DefaultK)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// encoderHealthChecker wraps domain.Embedder to implement health.EncoderChecker.
type encoderHealthChecker struct {
	embedder domain.Embedder
}

func newEncoderHealthChecker(embedder domain.Embedder) *encoderHealthChecker {
	return &encoderHealthChecker{embedder: embedder}
}

func (h *encoderHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("encoder health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain:
// OpenAI -> StoreCached -> LocalCached -> Breaker -> Instrumented.
// The returned closer releases the local cache, if any.
func buildEmbedder(cfg config.Config, kv db.KV, logger *zap.Logger) (domain.Embedder, func()) {
	base := openaiT.NewEmbedder(&openaiT.Config{
		APIKey:     cfg.Encoder.APIKey,
		BaseURL:    cfg.Encoder.BaseURL,
		Model:      cfg.Encoder.Model,
		Dimensions: cfg.Encoder.Dimensions,
		Provider:   cfg.Encoder.ProviderName,
		Logger:     logger,
	})

	var embedder domain.Embedder = base

	// Store-backed cache survives restarts; only worth it on the redis driver.
	if cfg.StoreCacheEnabled() && kv != nil {
		ttl := time.Duration(cfg.Encoder.Cache.StoreTTLSec) * time.Second
		cacheTotal := metrics.EmbeddingCacheTotal.MustCurryWith(prometheus.Labels{"layer": "store"})
		embedder = embcache.New(embedder, kv, ttl, cacheTotal, logger)
	}

	closer := func() {}
	if cfg.Encoder.Cache.LocalEntries > 0 {
		local, err := embeddinguc.NewLocalCachedEmbedder(embedder, cfg.Encoder.Cache.LocalEntries)
		if err != nil {
			logger.Fatal("Failed to create local embedding cache", zap.Error(err))
		}
		embedder = local
		closer = local.Close
	}

	embedder = embeddinguc.NewBreakerEmbedder(embedder, cfg.Encoder.ProviderName, embeddinguc.BreakerConfig{
		MaxRequests:      cfg.Encoder.Breaker.MaxRequests,
		Interval:         time.Duration(cfg.Encoder.Breaker.IntervalSec) * time.Second,
		Timeout:          time.Duration(cfg.Encoder.Breaker.TimeoutSec) * time.Second,
		MinRequests:      cfg.Encoder.Breaker.MinRequests,
		FailureThreshold: cfg.Encoder.Breaker.FailureThreshold,
	}, logger)

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Encoder.ProviderName, cfg.Encoder.Model, logger,
	)

	return embedder, closer
}

// buildCondenser selects the summarization provider.
func buildCondenser(cfg config.Config, logger *zap.Logger) summarizeuc.Condenser {
	switch cfg.Summarize.Provider {
	case "anthropic":
		return anthropicT.NewSummarizer(&anthropicT.Config{
			APIKey:    cfg.Summarize.APIKey,
			Model:     cfg.Summarize.Model,
			MaxTokens: int64(cfg.Summarize.MaxTokens),
			Logger:    logger,
		})
	default:
		return openaiT.NewSummarizer(&openaiT.SummarizerConfig{
			APIKey:    cfg.Summarize.APIKey,
			BaseURL:   cfg.Summarize.BaseURL,
			Model:     cfg.Summarize.Model,
			MaxTokens: cfg.Summarize.MaxTokens,
			Logger:    logger,
		})
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request.
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
