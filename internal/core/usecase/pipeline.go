package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/ports"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pipeline runs rewrite, embed, search and re-rank for one query. Only
// validation errors and unexpected search errors reach the caller.
type Pipeline struct {
	rewrite  *RewriteStage
	embed    *EmbedStage
	backend  ports.SearchBackend
	rerank   *RerankStage
	observer ports.PipelineObserver
}

type PipelineOption func(*Pipeline)

func WithEmbedStage(stage *EmbedStage) PipelineOption {
	return func(p *Pipeline) { p.embed = stage }
}

func WithRerankStage(stage *RerankStage) PipelineOption {
	return func(p *Pipeline) { p.rerank = stage }
}

func WithPipelineObserver(observer ports.PipelineObserver) PipelineOption {
	return func(p *Pipeline) { p.observer = observer }
}

func NewPipeline(rewrite *RewriteStage, backend ports.SearchBackend, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{rewrite: rewrite, backend: backend}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	started := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query", errors.New("query is required"))
	}
	if req.Page < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query", errors.New("page must be >= 0"))
	}
	pageSize := req.PageSize
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}

	var (
		timings   domain.Timings
		rewritten domain.RewriteOutput
		vector    []float32
	)

	// Embedding uses the rewritten query when rewrite can produce one, so
	// the two only overlap when rewrite is off. Either way the embedded text
	// is redacted.
	rewriteActive := p.rewrite != nil && p.rewrite.Active()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rewritten = p.runRewrite(gctx, query, req.Filters, &timings)
		if rewriteActive {
			vector = p.runEmbed(gctx, rewritten.Query, &timings)
		}
		return nil
	})
	if !rewriteActive {
		embedText := query
		if p.rewrite != nil {
			embedText = p.rewrite.Normalize(query).Query
		}
		g.Go(func() error {
			vector = p.runEmbed(gctx, embedText, &timings)
			return nil
		})
	}
	_ = g.Wait()

	searchReq := domain.SearchRequest{
		Query:       rewritten.Query,
		Filters:     req.Filters,
		Page:        req.Page,
		PageSize:    pageSize,
		QueryVector: vector,
	}
	if rewritten.HasHints() {
		hints := rewritten
		searchReq.Hints = &hints
	}

	searchStarted := time.Now()
	result, err := p.backend.Search(ctx, searchReq)
	timings.SearchMs = domain.Millis(time.Since(searchStarted))
	if err != nil {
		return nil, err
	}
	p.observeStage("search", outcomeFor(result.Degraded), time.Since(searchStarted))

	items := result.Items
	rerankStarted := time.Now()
	items, outcome := p.rerank.ReRank(ctx, rewritten.Query, items, rewritten.Boosts)
	timings.RerankMs = domain.Millis(time.Since(rerankStarted))
	p.observeStage("rerank", outcome, time.Since(rerankStarted))

	if items == nil {
		items = []domain.SearchItem{}
	}
	total := time.Since(started)
	timings.TotalMs = domain.Millis(total)
	if p.observer != nil {
		p.observer.ObserveQuery(total, len(items), result.Degraded)
	}

	return &domain.QueryResponse{
		Results: items,
		Total:   result.Total,
		Timings: timings,
		Query: domain.QueryInfo{
			Original:  query,
			Effective: rewritten.Query,
			Intents:   domain.IntentStrings(rewritten.Intents),
			PIIFound:  rewritten.PIIFound,
		},
		Degraded: result.Degraded,
	}, nil
}

func (p *Pipeline) runRewrite(ctx context.Context, query string, filters map[string][]string, timings *domain.Timings) domain.RewriteOutput {
	if p.rewrite == nil {
		return domain.RewriteOutput{Query: query}
	}
	started := time.Now()
	out, outcome := p.rewrite.Rewrite(ctx, query, filters)
	timings.RewriteMs = domain.Millis(time.Since(started))
	p.observeStage("rewrite", outcome, time.Since(started))
	return out
}

func (p *Pipeline) runEmbed(ctx context.Context, text string, timings *domain.Timings) []float32 {
	started := time.Now()
	vec, outcome := p.embed.Embed(ctx, text)
	timings.EmbedMs = domain.Millis(time.Since(started))
	p.observeStage("embed", outcome, time.Since(started))
	return vec
}

func (p *Pipeline) observeStage(stage string, outcome domain.StageOutcome, d time.Duration) {
	if p.observer != nil {
		p.observer.ObserveStage(stage, outcome, d)
	}
}

func outcomeFor(degraded bool) domain.StageOutcome {
	if degraded {
		return domain.OutcomeFallback
	}
	return domain.OutcomeOK
}
