package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/ports"
)

const (
	DefaultEmbedTimeout  = 1500 * time.Millisecond
	DefaultEmbedCacheTTL = time.Hour
)

type EmbedStageConfig struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	// Dimensions is the vector length the index expects. Vectors of any
	// other length are discarded. Zero accepts any length.
	Dimensions int
}

// EmbedStage produces a query vector or nothing. Callers fall back to
// lexical search when it returns nil.
type EmbedStage struct {
	provider ports.Embedder
	cache    ports.VectorCache
	caller   ports.Caller
	cfg      EmbedStageConfig
}

func NewEmbedStage(provider ports.Embedder, cache ports.VectorCache, caller ports.Caller, cfg EmbedStageConfig) *EmbedStage {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEmbedTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultEmbedCacheTTL
	}
	return &EmbedStage{provider: provider, cache: cache, caller: caller, cfg: cfg}
}

func (s *EmbedStage) Embed(ctx context.Context, text string) ([]float32, domain.StageOutcome) {
	text = strings.TrimSpace(text)
	if s == nil || s.provider == nil || text == "" {
		return nil, domain.OutcomeSkipped
	}

	key := cacheKey("emb:", text)
	// The cache lookup counts against the stage timeout.
	res, err := runWithTimeout(ctx, s.cfg.Timeout, func(ctx context.Context) (embedResult, error) {
		if s.cache != nil {
			if vec, ok := s.cache.Get(ctx, key); ok && s.fits(vec) {
				return embedResult{vec: vec, cached: true}, nil
			}
		}
		vec, err := s.call(ctx, text)
		return embedResult{vec: vec}, err
	})
	if err != nil || len(res.vec) == 0 {
		slog.Warn("stage_fallback", "stage", "embed", "error", err)
		return nil, domain.OutcomeFallback
	}
	if !s.fits(res.vec) {
		slog.Warn("stage_fallback", "stage", "embed",
			"reason", "dimension_mismatch",
			"got", len(res.vec),
			"want", s.cfg.Dimensions,
		)
		return nil, domain.OutcomeFallback
	}

	if s.cache != nil && !res.cached {
		s.cache.Set(ctx, key, res.vec, s.cfg.CacheTTL)
	}
	return res.vec, domain.OutcomeOK
}

// FillMissing embeds every doc that carries no usable vector. Docs that
// fail to embed are left without one and still get indexed lexically.
func (s *EmbedStage) FillMissing(ctx context.Context, docs []domain.IndexedDoc) {
	if s == nil {
		return
	}
	for i := range docs {
		if len(docs[i].Embedding) > 0 && s.fits(docs[i].Embedding) {
			continue
		}
		docs[i].Embedding = nil
		text := docs[i].Title
		if docs[i].Text != "" {
			text += "\n" + docs[i].Text
		}
		if vec, outcome := s.Embed(ctx, text); outcome == domain.OutcomeOK {
			docs[i].Embedding = vec
		}
	}
}

type embedResult struct {
	vec    []float32
	cached bool
}

func (s *EmbedStage) fits(vec []float32) bool {
	return s.cfg.Dimensions <= 0 || len(vec) == s.cfg.Dimensions
}

func (s *EmbedStage) call(ctx context.Context, text string) ([]float32, error) {
	if s.caller == nil {
		return s.provider.Embed(ctx, text)
	}
	var vec []float32
	err := s.caller.Call(ctx, "embed", func(ctx context.Context) error {
		v, err := s.provider.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	return vec, err
}
