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
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clearlane/htsnav/internal/config"
	dbPostgres "github.com/clearlane/htsnav/internal/db/postgres"
	dbRedis "github.com/clearlane/htsnav/internal/db/redis"
	"github.com/clearlane/htsnav/internal/domain"
	"github.com/clearlane/htsnav/internal/embedding"
	logpkg "github.com/clearlane/htsnav/internal/logger"
	"github.com/clearlane/htsnav/internal/metrics"
	classificationrepo "github.com/clearlane/htsnav/internal/repository/classification"
	"github.com/clearlane/htsnav/internal/repository/embcache"
	indexrepo "github.com/clearlane/htsnav/internal/repository/index"
	programrepo "github.com/clearlane/htsnav/internal/repository/program"
	chiTransport "github.com/clearlane/htsnav/internal/transport/chi"
	openaiEmb "github.com/clearlane/htsnav/internal/transport/openai"
	"github.com/clearlane/htsnav/internal/transport/rerank"
	classifyuc "github.com/clearlane/htsnav/internal/usecase/classify"
	embeddinguc "github.com/clearlane/htsnav/internal/usecase/embedding"
	healthuc "github.com/clearlane/htsnav/internal/usecase/health"
	ingestuc "github.com/clearlane/htsnav/internal/usecase/ingest"
	retrievaluc "github.com/clearlane/htsnav/internal/usecase/retrieval"
	tariffuc "github.com/clearlane/htsnav/internal/usecase/tariff"
	"github.com/clearlane/htsnav/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting htsnav API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Database.Addrs),
	)

	// Vector store (Redis)
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Vector store not ready", zap.Error(err))
	}
	logger.Info("Connected to vector store")

	// Reference data store (Postgres)
	sqlDB, err := dbPostgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer func() { _ = sqlDB.Close() }()
	logger.Info("Connected to Postgres")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	// Embedder chain: OpenAI -> Cached -> Instrumented
	embedder := buildEmbedder(cfg, store, logger)
	sparseEmbedder := embedding.NewHashedSparse(cfg.Embedding.SparseDim)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Int("sparse_dim", cfg.Embedding.SparseDim),
	)

	// Optional cross-encoder reranker
	var reranker domain.Reranker
	var rerankClient *rerank.Client
	if cfg.Retrieval.RerankURL != "" {
		rerankClient = rerank.NewClient(&rerank.Config{
			BaseURL: cfg.Retrieval.RerankURL,
			Logger:  logger,
		})
		reranker = rerankClient
		logger.Info("Reranker enabled", zap.String("url", cfg.Retrieval.RerankURL))
	}

	// Vector index
	index := indexrepo.New(store, indexrepo.Config{
		KeyPrefix:       cfg.Storage.KeyPrefix,
		Collection:      cfg.Retrieval.Collection,
		Dimensions:      cfg.Embedding.Dimensions,
		SparseQueryDims: cfg.Retrieval.SparseQueryDims,
	}, logger)
	if err := index.EnsureCollection(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}

	// Reference data repositories
	classifications := classificationrepo.New(sqlDB)
	programs := programrepo.New(sqlDB)

	// Use case services
	retrievalSvc := retrievaluc.New(index, embedder, sparseEmbedder, reranker, retrievaluc.Config{
		TopK:       cfg.Retrieval.TopK,
		RRFK:       cfg.Retrieval.RRFK,
		RerankTopK: cfg.Retrieval.RerankTopK,
		BlendRatio: cfg.Retrieval.BlendRatio,
	}, logger)
	classifySvc := classifyuc.New(classifications, retrievalSvc, logger)
	resolverSvc := tariffuc.NewService(programs, cfg.Tariff.Column2Countries, logger)
	calculatorSvc := tariffuc.NewCalculator(resolverSvc, tariffuc.Fees{
		MPF: cfg.Tariff.MPF,
		HMF: cfg.Tariff.HMF,
	}, logger)
	ingestSvc := ingestuc.New(index, embedder, sparseEmbedder, ingestuc.Config{
		ChunkSentences: cfg.Ingest.ChunkSentences,
		BatchSize:      cfg.Ingest.BatchSize,
		Workers:        cfg.Ingest.Workers,
	}, logger)

	// Health service
	var rerankChecker healthuc.UpstreamChecker
	if rerankClient != nil {
		rerankChecker = rerankClient
	}
	healthSvc := healthuc.New(
		store,
		healthuc.PingerFunc(sqlDB.PingContext),
		newEmbeddingHealthChecker(embedder),
		rerankChecker,
	)

	// HTTP server
	server := chiTransport.NewServer(
		retrievalSvc, classifySvc, resolverSvc, calculatorSvc, ingestSvc, healthSvc, logger,
	)

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

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(cfg config.Config, store *dbRedis.Store, logger *zap.Logger) *embeddinguc.InstrumentedEmbedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	cached := embcache.New(
		base,
		store,
		cfg.Storage.KeyPrefix,
		time.Duration(cfg.Embedding.CacheTTLHours)*time.Hour,
		metrics.EmbeddingCacheTotal,
		logger,
	)

	var limiter *rate.Limiter
	if cfg.Ingest.EmbedRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Ingest.EmbedRPS), cfg.Ingest.EmbedRPS)
	}

	return embeddinguc.NewInstrumentedEmbedder(
		cached, cfg.Embedding.Provider, cfg.Embedding.Model, limiter, logger,
	)
}

// embeddingHealthChecker wraps domain.Embedder to implement health.UpstreamChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
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

			// Request-scoped logger for downstream layers
			reqLogger := logger.With(zap.String("request_id", requestID))
			r = r.WithContext(logpkg.ContextWithLogger(r.Context(), reqLogger))

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http_request",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
			)
		})
	}
}
