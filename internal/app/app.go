// Package app is the composition root. It constructs every component
// from configuration and injects dependencies explicitly; nothing in
// the tree reaches for a singleton except the slog default logger.
package app

import (
	"context"
	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/resync-ops/resync/internal/agent"
	"github.com/resync-ops/resync/internal/audit"
	"github.com/resync-ops/resync/internal/chunk"
	"github.com/resync-ops/resync/internal/config"
	"github.com/resync-ops/resync/internal/diagnostic"
	"github.com/resync-ops/resync/internal/embed"
	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/graph"
	"github.com/resync-ops/resync/internal/ingest"
	"github.com/resync-ops/resync/internal/intent"
	"github.com/resync-ops/resync/internal/llm"
	"github.com/resync-ops/resync/internal/lock"
	"github.com/resync-ops/resync/internal/memory"
	"github.com/resync-ops/resync/internal/router"
	"github.com/resync-ops/resync/internal/search"
	"github.com/resync-ops/resync/internal/session"
	"github.com/resync-ops/resync/internal/store"
	"github.com/resync-ops/resync/internal/telemetry"
	"github.com/resync-ops/resync/internal/tws"
)

// Options injects the out-of-core capabilities. The LLM and TWS
// transports live outside this repository; a nil field selects the
// offline fallback (rule-only intent, empty graph, degraded answers).
type Options struct {
	LLM llm.Client
	TWS tws.Client

	// Registry receives the Prometheus collectors. Nil creates a
	// private registry.
	Registry *prometheus.Registry
}

// App holds the wired component graph for one process.
type App struct {
	Config *config.Config

	VectorStore store.VectorStore
	Redis       redis.UniversalClient
	BM25        *store.BM25Index
	Embedder    embed.Embedder
	LLM         llm.Client
	TWS         tws.Client

	Metrics  *telemetry.Metrics
	Recorder *telemetry.RetrievalRecorder
	Registry *prometheus.Registry

	Retriever   *search.Retriever
	Graph       *graph.Graph
	QueryRouter *router.Router
	Intent      *intent.Classifier
	Executor    *agent.Executor
	AgentRouter *agent.Router
	Diagnostic  *diagnostic.Engine

	Sessions   session.Store
	Memory     *memory.Service
	AuditQueue *audit.Queue
	Reviewer   *audit.Reviewer
	Locks      *lock.Manager
	Ingestor   *ingest.Ingestor

	closers []func() error
}

// New wires the application. Callers must Close it.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a.Registry = reg
	a.Metrics = telemetry.NewMetrics(reg)
	a.Recorder = telemetry.NewRetrievalRecorder(a.Metrics)

	vs, err := store.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.VectorStore = vs
	a.closers = append(a.closers, vs.Close)

	if err := a.connectRedis(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	embedder, err := embed.New(embed.FactoryConfig{
		Endpoint:   cfg.Capabilities.EmbedEndpoint,
		Model:      cfg.Capabilities.EmbedModel,
		Dimensions: cfg.Storage.EmbedDim,
		Timeout:    cfg.VectorSearchTimeout(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Embedder = embedder

	a.LLM = opts.LLM
	if a.LLM == nil {
		a.LLM = llm.Disabled{}
	}
	a.TWS = opts.TWS
	if a.TWS == nil {
		a.TWS = tws.Offline{}
	}

	a.buildRetrieval(cfg)
	a.buildCoordination(cfg)
	if err := a.buildConversation(ctx, cfg, opts.LLM != nil); err != nil {
		a.Close()
		return nil, err
	}
	a.buildAgents(cfg, opts.LLM)

	slog.Info("application wired",
		slog.Bool("llm", opts.LLM != nil),
		slog.Bool("tws", opts.TWS != nil),
		slog.Bool("memory_vector_store", cfg.UseMemoryVectorStore()))
	return a, nil
}

// connectRedis connects to the configured Redis, or boots an embedded
// one when no URL is set.
func (a *App) connectRedis(ctx context.Context, cfg *config.Config) error {
	url := cfg.Storage.RedisURL
	if url == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return errors.NewConnectionError("start embedded redis", err)
		}
		a.closers = append(a.closers, func() error { mr.Close(); return nil })
		url = "redis://" + mr.Addr()
		slog.Info("using embedded redis", slog.String("addr", mr.Addr()))
	}

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return errors.NewConnectionError("parse redis url", err)
	}
	redisOpts.MinIdleConns = cfg.Storage.RedisPoolMinSize
	redisOpts.PoolSize = cfg.Storage.RedisPoolMaxSize

	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.RedisTimeout())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return errors.NewConnectionError("redis ping", err)
	}

	a.Redis = client
	a.closers = append(a.closers, client.Close)
	return nil
}

func (a *App) buildRetrieval(cfg *config.Config) {
	a.BM25 = store.NewBM25Index(a.VectorStore, cfg.Storage.CollectionRead)

	cacheSize := cfg.Cache.QueryCacheMaxSize
	if !cfg.Cache.QueryCacheEnabled {
		cacheSize = -1
	}
	classifier := search.NewClassifier(search.Weights{
		Vector:  cfg.Retrieval.VectorWeight,
		Keyword: cfg.Retrieval.KeywordWeight,
	}, cacheSize, cfg.QueryCacheTTL())

	var reranker search.Reranker
	if cfg.Retrieval.EnableReranking {
		reranker = search.NewLLMReranker(a.LLM)
	}

	a.Retriever = search.NewRetriever(a.VectorStore, a.BM25, a.Embedder,
		classifier, reranker, cfg.Storage.CollectionRead, search.Options{
			TopK: cfg.Retrieval.VectorTopK,
			Gate: search.RerankGate{
				LowScore:      cfg.Retrieval.RerankScoreLowThreshold,
				Margin:        cfg.Retrieval.RerankMarginThreshold,
				MaxCandidates: cfg.Retrieval.RerankMaxCandidates,
			},
			EnableRerank: cfg.Retrieval.EnableReranking,
			Recorder:     a.Recorder,
		})

	a.Graph = graph.New(a.TWS, 0)
	a.QueryRouter = router.New(a.Graph, a.Retriever)

	a.Ingestor = ingest.New(a.VectorStore, a.Embedder, chunk.NewTWSOptimized(0),
		cfg.Storage.CollectionRead, cfg.Storage.CollectionWrite, a.Metrics)
}

func (a *App) buildCoordination(cfg *config.Config) {
	a.AuditQueue = audit.NewQueue(a.Redis)
	a.Locks = lock.NewManager(a.Redis, cfg.LockTTL())
	a.Reviewer = audit.NewReviewer(a.AuditQueue, a.Locks)
}

// buildConversation wires sessions and long-term memory. The memory
// backend follows the vector store choice: pgvector-backed persistence
// in production, in-process maps otherwise.
func (a *App) buildConversation(ctx context.Context, cfg *config.Config, llmAvailable bool) error {
	a.Sessions = session.NewRedisStore(a.Redis, cfg.SessionTTL())

	var memStore memory.Store
	if cfg.UseMemoryVectorStore() {
		memStore = memory.NewMemoryStore()
	} else {
		pg, err := memory.NewPgStore(ctx, cfg.Storage.DatabaseURL, cfg.Storage.EmbedDim)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		memStore = pg
	}

	var extractor *memory.Extractor
	if llmAvailable {
		extractor = memory.NewExtractor(a.LLM, cfg.Capabilities.LLMModel,
			cfg.Memory.ExtractionMinConfidence)
	}
	a.Memory = memory.NewService(memStore, a.Embedder, extractor,
		cfg.Memory.PushSimilarityThreshold)
	return nil
}

// buildAgents wires the intent classifier, tool loop, diagnostic
// engine, and the agent router on top of them. The intent classifier
// gets the raw optional client: nil keeps it rule-only instead of
// burning a doomed LLM call per query.
func (a *App) buildAgents(cfg *config.Config, optionalLLM llm.Client) {
	a.Intent = intent.NewClassifier(optionalLLM)

	registry := agent.DefaultRegistry(a.TWS, a.Graph)
	a.Executor = agent.NewExecutor(a.LLM, registry, a.AuditQueue,
		cfg.Agent.MaxToolSteps)

	a.Diagnostic = diagnostic.NewEngine(a.LLM, a.Retriever, a.TWS, a.AuditQueue,
		cfg.Diagnostic.MaxIterations,
		cfg.Diagnostic.MinConfidenceForProposal,
		cfg.Diagnostic.RequireApprovalForActions)

	a.AgentRouter = agent.NewRouter(a.Intent, a.QueryRouter, a.LLM, a.Executor,
		a.Diagnostic, a.AuditQueue, cfg.Agent.QuarantineThreshold)
}

// Close releases every held resource in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}
