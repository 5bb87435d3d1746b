package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/ports"
	"github.com/kirillkom/search-orchestrator/internal/core/redact"
)

const (
	DefaultRewriteTimeout  = 2 * time.Second
	DefaultRewriteCacheTTL = 5 * time.Minute
	DefaultMaxQueryLen     = 512
)

type RewriteStageConfig struct {
	Enabled     bool
	Timeout     time.Duration
	MaxQueryLen int
	CacheTTL    time.Duration
}

// RewriteStage normalizes and enriches the user query. It never fails: any
// provider problem degrades to the redacted query without hints.
type RewriteStage struct {
	provider ports.QueryRewriter
	redactor *redact.Redactor
	cache    ports.RewriteCache
	caller   ports.Caller
	cfg      RewriteStageConfig
}

func NewRewriteStage(
	provider ports.QueryRewriter,
	redactor *redact.Redactor,
	cache ports.RewriteCache,
	caller ports.Caller,
	cfg RewriteStageConfig,
) *RewriteStage {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRewriteTimeout
	}
	if cfg.MaxQueryLen <= 0 {
		cfg.MaxQueryLen = DefaultMaxQueryLen
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultRewriteCacheTTL
	}
	return &RewriteStage{
		provider: provider,
		redactor: redactor,
		cache:    cache,
		caller:   caller,
		cfg:      cfg,
	}
}

// Normalize truncates and redacts the query. It is the output of the stage
// whenever the provider is skipped or fails. Whitespace is kept as given;
// the pipeline trims before validating.
func (s *RewriteStage) Normalize(query string) domain.RewriteOutput {
	out := domain.RewriteOutput{Query: truncateRunes(query, s.cfg.MaxQueryLen)}
	if s.redactor != nil {
		res := s.redactor.Redact(out.Query)
		out.Query = res.Text
		out.PIIFound = res.Kinds()
	}
	return out
}

// Active reports whether Rewrite will consult the provider.
func (s *RewriteStage) Active() bool {
	return s.cfg.Enabled && s.provider != nil
}

func (s *RewriteStage) Rewrite(ctx context.Context, query string, filters map[string][]string) (domain.RewriteOutput, domain.StageOutcome) {
	base := s.Normalize(query)
	if !s.Active() {
		return base, domain.OutcomeSkipped
	}

	key := cacheKey("rw:", base.Query, filterKey(filters))
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			cached.PIIFound = base.PIIFound
			return cached, domain.OutcomeOK
		}
	}

	out, err := runWithTimeout(ctx, s.cfg.Timeout, func(ctx context.Context) (domain.RewriteOutput, error) {
		return s.call(ctx, base.Query, filters)
	})
	if err != nil {
		slog.Warn("stage_fallback", "stage", "rewrite", "error", err)
		return base, domain.OutcomeFallback
	}

	if strings.TrimSpace(out.Query) == "" {
		out.Query = base.Query
	}
	out.PIIFound = nil
	if s.cache != nil {
		s.cache.Set(key, out, s.cfg.CacheTTL)
	}
	out.PIIFound = base.PIIFound
	return out, domain.OutcomeOK
}

func (s *RewriteStage) call(ctx context.Context, query string, filters map[string][]string) (domain.RewriteOutput, error) {
	if s.caller == nil {
		return s.provider.Rewrite(ctx, query, filters)
	}
	var out domain.RewriteOutput
	err := s.caller.Call(ctx, "rewrite", func(ctx context.Context) error {
		res, err := s.provider.Rewrite(ctx, query, filters)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}
