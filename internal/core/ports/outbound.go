package ports

import (
	"context"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

// QueryRewriter is the external AI rewrite capability. Implementations blend
// the heuristic pass with provider output.
type QueryRewriter interface {
	Rewrite(ctx context.Context, query string, filters map[string][]string) (domain.RewriteOutput, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchBackend talks to the text/vector search engine.
type SearchBackend interface {
	Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error)
	BulkIndex(ctx context.Context, source string, docs []domain.IndexedDoc) (int, error)
	EnsureIndexTemplate(ctx context.Context) error
}

// ContentProvider pages through an external content source.
type ContentProvider interface {
	FetchPage(ctx context.Context, cursor *string, limit int) (domain.Page, error)
}

// Reranker scores and reorders search candidates.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []domain.SearchItem, hints domain.BoostHints) ([]domain.SearchItem, error)
}

// ReindexQueue publishes/consumes reindex jobs.
type ReindexQueue interface {
	PublishReindex(ctx context.Context, source string) error
	SubscribeReindex(ctx context.Context, handler func(context.Context, string) error) error
}

// IngestRunStore records ingestion runs.
type IngestRunStore interface {
	StartRun(ctx context.Context, run *domain.IngestRun) error
	FinishRun(ctx context.Context, run *domain.IngestRun) error
}

// PipelineObserver receives query pipeline events.
type PipelineObserver interface {
	ObserveStage(stage string, outcome domain.StageOutcome, duration time.Duration)
	ObserveQuery(duration time.Duration, results int, degraded bool)
}

// IngestObserver receives the per-run indexing event.
type IngestObserver interface {
	ObserveIndexing(source string, stats domain.IngestStats, duration time.Duration, err error)
}

// Caller runs fn under the resilience policy registered for operation
// (circuit breaker around retry).
type Caller interface {
	Call(ctx context.Context, operation string, fn func(context.Context) error) error
}

// RewriteCache stores rewrite results in process.
type RewriteCache interface {
	Get(key string) (domain.RewriteOutput, bool)
	Set(key string, value domain.RewriteOutput, ttl time.Duration)
}

// VectorCache stores embeddings. Implementations may be multi-tier.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration)
}
