package ports

import (
	"context"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

// QueryService is the inbound contract for the search pipeline.
type QueryService interface {
	Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error)
}

// IndexAdmin is the inbound contract for template management and indexing.
type IndexAdmin interface {
	EnsureTemplate(ctx context.Context) error
	IndexDocs(ctx context.Context, source string, docs []domain.IndexedDoc) (int, error)
	Reindex(ctx context.Context, source string) (*domain.ReindexResult, error)
}

// SourceIngestor runs one ingestion pass for a single source.
type SourceIngestor interface {
	RunOnce(ctx context.Context) (domain.IngestStats, error)
}
