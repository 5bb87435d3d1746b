package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/config"
	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/heuristic"
	"github.com/kirillkom/search-orchestrator/internal/core/ports"
	"github.com/kirillkom/search-orchestrator/internal/core/redact"
	"github.com/kirillkom/search-orchestrator/internal/core/usecase"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/cache"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/llm/hashembed"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/llm/openai"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/queue/nats"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/resilience"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/search/opensearch"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/source/backstage"
	"github.com/kirillkom/search-orchestrator/internal/observability/metrics"
)

const cacheJanitorInterval = time.Minute

type App struct {
	Config  config.Config
	Metrics *metrics.Metrics

	Executor *resilience.Executor
	Search   *opensearch.Client
	Queue    *nats.Queue
	Runs     *postgres.IngestRunRepository

	Pipeline *usecase.Pipeline
	Admin    *usecase.IndexAdminUseCase

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.New(service)}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	app.Executor = resilience.NewExecutor(resilienceConfig(cfg)).
		OnTransition(func(name string, _, to resilience.State) {
			app.Metrics.RecordBreakerTransition(name, string(to))
		})

	analyzer, err := newAnalyzer(cfg)
	if err != nil {
		return nil, err
	}

	rewriteCache := cache.New[domain.RewriteOutput]("rewrite",
		cache.WithCounter(app.Metrics.CacheRequests()),
		cache.WithJanitor(cacheJanitorInterval),
	)
	app.onClose(rewriteCache.Close)

	vectorCache, err := app.newVectorCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rewriteStage := usecase.NewRewriteStage(
		newRewriter(cfg, analyzer),
		redact.New(redact.Config{
			Email:  cfg.PIIRedactEmail,
			Tokens: cfg.PIIRedactTokens,
			Phone:  cfg.PIIRedactPhone,
		}),
		rewriteCache,
		app.Executor,
		usecase.RewriteStageConfig{
			Enabled:     cfg.RewriteEnabled,
			Timeout:     cfg.RewriteTimeout,
			MaxQueryLen: cfg.RewriteMaxQueryLen,
		},
	)

	var embedStage *usecase.EmbedStage
	if cfg.VectorEnabled {
		embedder, err := newEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		embedStage = usecase.NewEmbedStage(embedder, vectorCache, app.Executor, usecase.EmbedStageConfig{
			Timeout:    cfg.EmbedTimeout,
			Dimensions: cfg.VectorDimensions,
		})
	}

	weights := usecase.DefaultRerankWeights()
	weights.FreshnessWindow = time.Duration(cfg.RerankFreshnessDays) * 24 * time.Hour
	rerankStage := usecase.NewRerankStage(usecase.NewHeuristicReranker(weights), usecase.RerankStageConfig{
		Enabled: cfg.RerankEnabled,
		TopK:    cfg.RerankTopK,
		Timeout: cfg.RerankTimeout,
	})

	app.Search = opensearch.New(opensearch.Config{
		URL:              cfg.SearchURL,
		Username:         cfg.SearchUsername,
		Password:         cfg.SearchPassword,
		BearerToken:      cfg.SearchBearerToken,
		InsecureTLS:      cfg.SearchInsecureTLS,
		IndexPrefix:      cfg.SearchIndexPrefix,
		TemplateName:     cfg.SearchTemplateName,
		VectorEnabled:    cfg.VectorEnabled,
		VectorDimensions: cfg.VectorDimensions,
		Boosts: opensearch.BoostWeights{
			Source: cfg.BoostSourceWeight,
			Tag:    cfg.BoostTagWeight,
		},
	}, opensearch.WithDegradedCounter(app.Metrics.SearchDegraded()))

	app.Pipeline = usecase.NewPipeline(rewriteStage, app.Search,
		usecase.WithEmbedStage(embedStage),
		usecase.WithRerankStage(rerankStage),
		usecase.WithPipelineObserver(app.Metrics),
	)

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.onClose(func() { _ = db.Close() })
		if err := initRunStore(ctx, app, db); err != nil {
			return nil, err
		}
	}

	ingestors := app.newIngestors(cfg, embedStage)

	var queue ports.ReindexQueue
	if cfg.NATSURL != "" {
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: app.Executor,
			OnLag:              app.Metrics.ObserveQueueLag,
		})
		if err != nil {
			return nil, fmt.Errorf("init reindex queue: %w", err)
		}
		app.Queue = q
		app.onClose(q.Close)
		queue = q
	}

	app.Admin = usecase.NewIndexAdminUseCase(app.Search, queue, ingestors,
		usecase.WithAdminEmbedding(embedStage),
	)

	slog.Info("bootstrap_complete",
		"rewrite_enabled", rewriteStage.Active(),
		"rewrite_provider", cfg.RewriteProvider,
		"vector_enabled", cfg.VectorEnabled,
		"embed_provider", cfg.EmbedProvider,
		"sources", len(ingestors),
		"queue", app.Queue != nil,
		"run_ledger", app.Runs != nil,
	)
	ok = true
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

func resilienceConfig(cfg config.Config) resilience.Config {
	threshold := cfg.BreakerFailureThreshold
	if threshold < 0 {
		threshold = 0
	}
	return resilience.Config{
		Retry: resilience.RetryPolicy{
			Retries:    cfg.RetryRetries,
			MinTimeout: cfg.RetryMinTimeout,
			MaxTimeout: cfg.RetryMaxTimeout,
			Factor:     cfg.RetryFactor,
		},
		BreakerEnabled:   true,
		FailureThreshold: uint32(threshold),
		ResetTimeout:     cfg.BreakerResetTimeout,
	}
}

func newAnalyzer(cfg config.Config) (*heuristic.Analyzer, error) {
	if cfg.RewriteSynonymsFile == "" {
		return heuristic.NewAnalyzer(heuristic.DefaultSynonyms()), nil
	}
	synonyms, err := heuristic.LoadSynonyms(cfg.RewriteSynonymsFile)
	if err != nil {
		return nil, fmt.Errorf("load synonyms: %w", err)
	}
	return heuristic.NewAnalyzer(synonyms), nil
}

// newRewriter returns nil when no provider is configured, which leaves the
// rewrite stage inactive.
func newRewriter(cfg config.Config, analyzer *heuristic.Analyzer) ports.QueryRewriter {
	switch cfg.RewriteProvider {
	case "openai":
		return openai.NewRewriter(openAIConfig(cfg), analyzer)
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
		return ollama.NewRewriter(client, analyzer)
	case "heuristic":
		return heuristic.NewRewriter(analyzer)
	case "":
		return nil
	default:
		slog.Warn("unknown_rewrite_provider", "provider", cfg.RewriteProvider)
		return nil
	}
}

func newEmbedder(cfg config.Config) (ports.Embedder, error) {
	switch cfg.EmbedProvider {
	case "openai":
		return openai.NewEmbedder(openAIConfig(cfg)), nil
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
		return ollama.NewEmbedder(client), nil
	case "hash", "":
		return hashembed.New(cfg.VectorDimensions), nil
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}
}

func openAIConfig(cfg config.Config) openai.Config {
	return openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		ChatModel:  cfg.OpenAIChatModel,
		EmbedModel: cfg.OpenAIEmbedModel,
		Dimensions: cfg.VectorDimensions,
	}
}

func (a *App) newVectorCache(ctx context.Context, cfg config.Config) (*cache.VectorCache, error) {
	local := cache.New[[]float32]("embedding",
		cache.WithCounter(a.Metrics.CacheRequests()),
		cache.WithJanitor(cacheJanitorInterval),
	)
	a.onClose(local.Close)

	if len(cfg.RedisAddrs) == 0 {
		return cache.NewVectorCache(local, nil), nil
	}
	store, err := cache.NewRedisStore(cache.RedisConfig{
		Addrs:    cfg.RedisAddrs,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	a.onClose(store.Close)
	if err := store.Ping(ctx); err != nil {
		slog.Warn("redis_ping_failed", "error", err)
	}
	vectors := cache.NewVectorCache(local, store)
	a.onClose(vectors.Flush)
	return vectors, nil
}

func initRunStore(ctx context.Context, app *App, db *sql.DB) error {
	repo := postgres.NewIngestRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure ingest run schema: %w", err)
	}
	app.Runs = repo
	return nil
}

func (a *App) newIngestors(cfg config.Config, embedStage *usecase.EmbedStage) map[string]ports.SourceIngestor {
	ingestors := map[string]ports.SourceIngestor{}
	if cfg.BackstageURL == "" {
		return ingestors
	}

	client := backstage.New(cfg.BackstageURL, cfg.BackstageToken).WithRetry(resilienceConfig(cfg).Retry)
	opts := []usecase.IngestOption{
		usecase.WithPageSize(cfg.IngestPageSize),
		usecase.WithIngestObserver(a.Metrics),
	}
	if embedStage != nil {
		opts = append(opts, usecase.WithDocEmbedding(embedStage))
	}
	if a.Runs != nil {
		opts = append(opts, usecase.WithRunStore(a.Runs))
	}

	for _, provider := range []*backstage.Provider{
		backstage.NewCatalogProvider(client),
		backstage.NewTechDocsProvider(client),
		backstage.NewAPIProvider(client),
	} {
		ingestors[provider.Source()] = usecase.NewIngestionOrchestrator(provider.Source(), provider, a.Search, opts...)
	}
	return ingestors
}
