package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/ports"
)

// IndexAdminUseCase manages the index template, direct indexing and
// reindex runs. With a queue configured reindex requests are handed to the
// worker; otherwise they run inline.
type IndexAdminUseCase struct {
	backend   ports.SearchBackend
	queue     ports.ReindexQueue
	ingestors map[string]ports.SourceIngestor
	embedder  *EmbedStage
}

type AdminOption func(*IndexAdminUseCase)

// WithAdminEmbedding fills missing vectors on directly indexed docs, the
// same way ingestion runs do.
func WithAdminEmbedding(stage *EmbedStage) AdminOption {
	return func(uc *IndexAdminUseCase) { uc.embedder = stage }
}

func NewIndexAdminUseCase(
	backend ports.SearchBackend,
	queue ports.ReindexQueue,
	ingestors map[string]ports.SourceIngestor,
	opts ...AdminOption,
) *IndexAdminUseCase {
	if ingestors == nil {
		ingestors = map[string]ports.SourceIngestor{}
	}
	uc := &IndexAdminUseCase{backend: backend, queue: queue, ingestors: ingestors}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *IndexAdminUseCase) EnsureTemplate(ctx context.Context) error {
	if err := uc.backend.EnsureIndexTemplate(ctx); err != nil {
		return fmt.Errorf("ensure index template: %w", err)
	}
	return nil
}

func (uc *IndexAdminUseCase) IndexDocs(ctx context.Context, source string, docs []domain.IndexedDoc) (int, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "index docs", fmt.Errorf("source is required"))
	}
	for i, doc := range docs {
		if strings.TrimSpace(doc.Title) == "" || strings.TrimSpace(doc.URL) == "" {
			return 0, domain.WrapError(domain.ErrInvalidInput, "index docs", fmt.Errorf("doc %d: title and url are required", i))
		}
	}
	if len(docs) == 0 {
		return 0, nil
	}

	uc.embedder.FillMissing(ctx, docs)
	indexed, err := uc.backend.BulkIndex(ctx, source, docs)
	if err != nil {
		return 0, fmt.Errorf("bulk index %s: %w", source, err)
	}
	return indexed, nil
}

func (uc *IndexAdminUseCase) Reindex(ctx context.Context, source string) (*domain.ReindexResult, error) {
	if !domain.IsKnownSource(source) {
		return nil, domain.WrapError(domain.ErrUnknownSource, "reindex", fmt.Errorf("unknown source %q", source))
	}

	if uc.queue != nil {
		if err := uc.queue.PublishReindex(ctx, source); err != nil {
			return nil, fmt.Errorf("publish reindex %s: %w", source, err)
		}
		return &domain.ReindexResult{Source: source, Queued: true}, nil
	}

	stats, err := uc.RunSource(ctx, source)
	if err != nil {
		return nil, err
	}
	return &domain.ReindexResult{Source: source, Stats: &stats}, nil
}

// RunSource runs the source's ingestion inline. The worker uses it to
// consume queued reindex jobs.
func (uc *IndexAdminUseCase) RunSource(ctx context.Context, source string) (domain.IngestStats, error) {
	ingestor, ok := uc.ingestors[source]
	if !ok {
		if domain.IsKnownSource(source) {
			return domain.IngestStats{}, domain.WrapError(domain.ErrInvalidInput, "reindex", fmt.Errorf("source %q has no content provider configured", source))
		}
		return domain.IngestStats{}, domain.WrapError(domain.ErrUnknownSource, "reindex", fmt.Errorf("unknown source %q", source))
	}
	return ingestor.RunOnce(ctx)
}
