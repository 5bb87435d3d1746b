package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/redact"
)

func TestPipelineRejectsEmptyQuery(t *testing.T) {
	p := NewPipeline(NewRewriteStage(nil, nil, nil, nil, RewriteStageConfig{}), &backendFake{})
	_, err := p.Query(context.Background(), domain.QueryRequest{Query: "   "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	_, err = p.Query(context.Background(), domain.QueryRequest{Query: "x", Page: -1})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative page, got %v", err)
	}
}

func TestPipelineClampsPageSize(t *testing.T) {
	backend := &backendFake{}
	p := NewPipeline(NewRewriteStage(nil, nil, nil, nil, RewriteStageConfig{}), backend)

	_, _ = p.Query(context.Background(), domain.QueryRequest{Query: "a"})
	_, _ = p.Query(context.Background(), domain.QueryRequest{Query: "a", PageSize: 1000, Page: 2})
	if backend.requests[0].PageSize != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", backend.requests[0].PageSize)
	}
	if backend.requests[1].PageSize != MaxPageSize || backend.requests[1].Page != 2 {
		t.Fatalf("expected clamped page size, got %+v", backend.requests[1])
	}
}

func TestPipelineRunsAllStages(t *testing.T) {
	rewriter := &rewriterFake{out: domain.RewriteOutput{
		Query:    "payments runbook",
		Intents:  []domain.Intent{domain.IntentIncident},
		Expanded: []string{"playbook"},
		Boosts:   domain.BoostHints{Tags: []string{"runbook"}},
	}}
	embedder := &embedderFake{vec: []float32{1, 0}}
	backend := &backendFake{result: domain.SearchResult{Items: items(3), Total: 3}}
	observer := &observerFake{}

	p := NewPipeline(
		NewRewriteStage(rewriter, redact.New(redact.DefaultConfig()), nil, nil, RewriteStageConfig{Enabled: true}),
		backend,
		WithEmbedStage(NewEmbedStage(embedder, nil, nil, EmbedStageConfig{})),
		WithRerankStage(NewRerankStage(NewHeuristicReranker(DefaultRerankWeights()), RerankStageConfig{Enabled: true})),
		WithPipelineObserver(observer),
	)

	resp, err := p.Query(context.Background(), domain.QueryRequest{Query: "payments outage", Filters: map[string][]string{"kind": {"component"}}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	req := backend.requests[0]
	if req.Query != "payments runbook" || req.Hints == nil || req.Hints.Expanded[0] != "playbook" {
		t.Fatalf("expected rewritten query and hints, got %+v", req)
	}
	if len(req.QueryVector) != 2 || req.Filters["kind"][0] != "component" {
		t.Fatalf("expected vector and caller filters, got %+v", req)
	}
	if texts := embedder.Texts(); len(texts) != 1 || texts[0] != "payments runbook" {
		t.Fatalf("expected embedding of rewritten query, got %v", texts)
	}
	if resp.Query.Original != "payments outage" || resp.Query.Effective != "payments runbook" {
		t.Fatalf("unexpected query info %+v", resp.Query)
	}
	if len(resp.Query.Intents) != 1 || resp.Query.Intents[0] != "incident" {
		t.Fatalf("unexpected intents %v", resp.Query.Intents)
	}
	if resp.Total != 3 || len(resp.Results) != 3 {
		t.Fatalf("unexpected results %+v", resp)
	}
	if resp.Timings.TotalMs < resp.Timings.SearchMs {
		t.Fatalf("total must cover search time: %+v", resp.Timings)
	}
	for _, stage := range []string{"rewrite", "embed", "search", "rerank"} {
		if observer.outcome(stage) != domain.OutcomeOK {
			t.Fatalf("expected %s ok, got %q", stage, observer.outcome(stage))
		}
	}
	if observer.queries != 1 {
		t.Fatalf("expected one query event")
	}
}

func TestPipelineDegradesWhenProvidersFail(t *testing.T) {
	rewriter := &rewriterFake{err: errors.New("down")}
	embedder := &embedderFake{err: errors.New("down")}
	backend := &backendFake{result: domain.SearchResult{Items: nil, Degraded: true}}
	observer := &observerFake{}

	p := NewPipeline(
		NewRewriteStage(rewriter, redact.New(redact.DefaultConfig()), nil, nil, RewriteStageConfig{Enabled: true}),
		backend,
		WithEmbedStage(NewEmbedStage(embedder, nil, nil, EmbedStageConfig{})),
		WithPipelineObserver(observer),
	)

	resp, err := p.Query(context.Background(), domain.QueryRequest{Query: "ping jane@corp.io"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	req := backend.requests[0]
	if req.Query != "ping [EMAIL]" || req.Hints != nil || req.QueryVector != nil {
		t.Fatalf("expected lexical-only redacted request, got %+v", req)
	}
	if !resp.Degraded || resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected degraded empty response, got %+v", resp)
	}
	if observer.outcome("rewrite") != domain.OutcomeFallback || observer.outcome("embed") != domain.OutcomeFallback {
		t.Fatalf("expected fallback outcomes, got %+v", observer.stages)
	}
	if observer.outcome("rerank") != domain.OutcomeSkipped || !observer.degraded {
		t.Fatalf("expected rerank skipped and degraded query event")
	}
}

func TestPipelineEmbedsRedactedQueryWhenRewriteDisabled(t *testing.T) {
	embedder := &embedderFake{vec: []float32{1}}
	p := NewPipeline(
		NewRewriteStage(nil, redact.New(redact.DefaultConfig()), nil, nil, RewriteStageConfig{}),
		&backendFake{},
		WithEmbedStage(NewEmbedStage(embedder, nil, nil, EmbedStageConfig{})),
	)
	if _, err := p.Query(context.Background(), domain.QueryRequest{Query: "ask bob@corp.io"}); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if texts := embedder.Texts(); len(texts) != 1 || texts[0] != "ask [EMAIL]" {
		t.Fatalf("expected redacted embedding input, got %v", texts)
	}
}

func TestPipelinePropagatesUnexpectedSearchErrors(t *testing.T) {
	errSearch := errors.New("bad response")
	p := NewPipeline(NewRewriteStage(nil, nil, nil, nil, RewriteStageConfig{}), &backendFake{err: errSearch})
	if _, err := p.Query(context.Background(), domain.QueryRequest{Query: "x"}); !errors.Is(err, errSearch) {
		t.Fatalf("expected search error, got %v", err)
	}
}
