package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/ports"
)

const DefaultIngestPageSize = 500

// IngestionOrchestrator pages through one content source and bulk-indexes
// every page. A failed page aborts the run.
type IngestionOrchestrator struct {
	source   string
	provider ports.ContentProvider
	backend  ports.SearchBackend
	embedder *EmbedStage
	runs     ports.IngestRunStore
	observer ports.IngestObserver
	pageSize int

	running sync.Mutex
}

type IngestOption func(*IngestionOrchestrator)

func WithPageSize(size int) IngestOption {
	return func(o *IngestionOrchestrator) {
		if size > 0 {
			o.pageSize = size
		}
	}
}

// WithDocEmbedding fills missing document vectors before indexing.
func WithDocEmbedding(stage *EmbedStage) IngestOption {
	return func(o *IngestionOrchestrator) { o.embedder = stage }
}

func WithRunStore(store ports.IngestRunStore) IngestOption {
	return func(o *IngestionOrchestrator) { o.runs = store }
}

func WithIngestObserver(observer ports.IngestObserver) IngestOption {
	return func(o *IngestionOrchestrator) { o.observer = observer }
}

func NewIngestionOrchestrator(
	source string,
	provider ports.ContentProvider,
	backend ports.SearchBackend,
	opts ...IngestOption,
) *IngestionOrchestrator {
	o := &IngestionOrchestrator{
		source:   source,
		provider: provider,
		backend:  backend,
		pageSize: DefaultIngestPageSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *IngestionOrchestrator) Source() string {
	return o.source
}

// RunOnce ingests the whole source. A run that overlaps another run of the
// same source fails with ErrRunInProgress.
func (o *IngestionOrchestrator) RunOnce(ctx context.Context) (domain.IngestStats, error) {
	if !o.running.TryLock() {
		return domain.IngestStats{}, domain.WrapError(domain.ErrRunInProgress, "ingest "+o.source, fmt.Errorf("source %s is already being ingested", o.source))
	}
	defer o.running.Unlock()

	started := time.Now()
	run := &domain.IngestRun{
		ID:        uuid.NewString(),
		Source:    o.source,
		Status:    domain.RunStatusRunning,
		StartedAt: started.UTC(),
	}
	if o.runs != nil {
		if err := o.runs.StartRun(ctx, run); err != nil {
			slog.Warn("ingestion_run_record_failed", "source", o.source, "run_id", run.ID, "error", err)
		}
	}

	stats, err := o.ingest(ctx, run.ID)

	finished := time.Now().UTC()
	run.Pages, run.Items, run.FinishedAt = stats.Pages, stats.Items, &finished
	run.Status = domain.RunStatusSucceeded
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
	}
	if o.runs != nil {
		if recErr := o.runs.FinishRun(context.WithoutCancel(ctx), run); recErr != nil {
			slog.Warn("ingestion_run_record_failed", "source", o.source, "run_id", run.ID, "error", recErr)
		}
	}
	if o.observer != nil {
		o.observer.ObserveIndexing(o.source, stats, time.Since(started), err)
	}

	if err != nil {
		return stats, err
	}
	slog.Info("ingestion_run_finished",
		"source", o.source,
		"run_id", run.ID,
		"pages", stats.Pages,
		"items", stats.Items,
		"duration_ms", domain.Millis(time.Since(started)),
	)
	return stats, nil
}

func (o *IngestionOrchestrator) ingest(ctx context.Context, runID string) (domain.IngestStats, error) {
	var stats domain.IngestStats
	var cursor *string
	for {
		page, err := o.provider.FetchPage(ctx, cursor, o.pageSize)
		if err != nil {
			return stats, fmt.Errorf("fetch %s page %d: %w", o.source, stats.Pages+1, err)
		}
		stats.Pages++

		if len(page.Items) > 0 {
			o.embedder.FillMissing(ctx, page.Items)
			indexed, err := o.backend.BulkIndex(ctx, o.source, page.Items)
			if err != nil {
				return stats, fmt.Errorf("bulk index %s page %d: %w", o.source, stats.Pages, err)
			}
			stats.Items += indexed
			slog.Debug("ingestion_page_indexed",
				"source", o.source,
				"run_id", runID,
				"page", stats.Pages,
				"items", indexed,
			)
		}

		if page.NextCursor == nil {
			return stats, nil
		}
		cursor = page.NextCursor
	}
}
