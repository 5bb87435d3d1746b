package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/ports"
)

const (
	DefaultRerankTopK    = 50
	DefaultRerankTimeout = 300 * time.Millisecond
)

type RerankWeights struct {
	Substring       float64
	Title           float64
	SourceBoost     float64
	TagBoost        float64
	Freshness       float64
	FreshnessWindow time.Duration
}

func DefaultRerankWeights() RerankWeights {
	return RerankWeights{
		Substring:       0.5,
		Title:           1.0,
		SourceBoost:     0.75,
		TagBoost:        0.5,
		Freshness:       0.5,
		FreshnessWindow: 30 * 24 * time.Hour,
	}
}

// HeuristicReranker rescores candidates from the backend score plus query
// match, boost and freshness bonuses.
type HeuristicReranker struct {
	weights RerankWeights
	now     func() time.Time
}

func NewHeuristicReranker(weights RerankWeights) *HeuristicReranker {
	if weights.FreshnessWindow <= 0 {
		weights.FreshnessWindow = DefaultRerankWeights().FreshnessWindow
	}
	return &HeuristicReranker{weights: weights, now: time.Now}
}

func (r *HeuristicReranker) Rerank(
	_ context.Context,
	query string,
	items []domain.SearchItem,
	hints domain.BoostHints,
) ([]domain.SearchItem, error) {
	n := len(items)
	if n == 0 {
		return items, nil
	}

	q := strings.ToLower(strings.TrimSpace(query))
	sources := toLowerSet(hints.Sources)
	tags := toLowerSet(hints.Tags)
	now := r.now()

	type scored struct {
		item  domain.SearchItem
		score float64
		rank  float64
	}
	out := make([]scored, n)
	for i, item := range items {
		score := item.Score
		title := strings.ToLower(item.Title)
		if q != "" {
			if strings.Contains(title+"\n"+strings.ToLower(item.Text), q) {
				score += r.weights.Substring
			}
			if strings.Contains(title, q) {
				score += r.weights.Title
			}
		}
		if _, ok := sources[strings.ToLower(item.Source)]; ok {
			score += r.weights.SourceBoost
		}
		for _, tag := range item.Tags() {
			if _, ok := tags[strings.ToLower(tag)]; ok {
				score += r.weights.TagBoost
				break
			}
		}
		score += r.freshness(item, now)

		out[i] = scored{item: item, score: score, rank: score + 1e-6*float64(n-i)}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].rank > out[j].rank
	})

	result := make([]domain.SearchItem, n)
	for i, s := range out {
		result[i] = s.item
		result[i].Score = s.score
	}
	return result, nil
}

func (r *HeuristicReranker) freshness(item domain.SearchItem, now time.Time) float64 {
	if r.weights.Freshness == 0 {
		return 0
	}
	updated, ok := updatedAt(item.Fields["updated_at"])
	if !ok {
		return 0
	}
	age := now.Sub(updated)
	if age < 0 {
		age = 0
	}
	if age >= r.weights.FreshnessWindow {
		return 0
	}
	return r.weights.Freshness * (1 - float64(age)/float64(r.weights.FreshnessWindow))
}

func updatedAt(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func toLowerSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

type RerankStageConfig struct {
	Enabled bool
	TopK    int
	Timeout time.Duration
}

// RerankStage reorders the head of the result list and keeps the tail in
// place. On timeout or error the input order is returned.
type RerankStage struct {
	reranker ports.Reranker
	cfg      RerankStageConfig
}

func NewRerankStage(reranker ports.Reranker, cfg RerankStageConfig) *RerankStage {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultRerankTopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankTimeout
	}
	return &RerankStage{reranker: reranker, cfg: cfg}
}

func (s *RerankStage) ReRank(
	ctx context.Context,
	query string,
	items []domain.SearchItem,
	hints domain.BoostHints,
) ([]domain.SearchItem, domain.StageOutcome) {
	if s == nil || !s.cfg.Enabled || s.reranker == nil || len(items) < 2 {
		return items, domain.OutcomeSkipped
	}

	topK := s.cfg.TopK
	if topK > len(items) {
		topK = len(items)
	}
	head := make([]domain.SearchItem, topK)
	copy(head, items[:topK])

	reranked, err := runWithTimeout(ctx, s.cfg.Timeout, func(ctx context.Context) ([]domain.SearchItem, error) {
		return s.reranker.Rerank(ctx, query, head, hints)
	})
	if err == nil && len(reranked) != topK {
		err = domain.WrapError(domain.ErrPermanent, "rerank", errUnexpectedCount)
	}
	if err != nil {
		slog.Warn("stage_fallback", "stage", "rerank", "error", err)
		return items, domain.OutcomeFallback
	}

	out := make([]domain.SearchItem, 0, len(items))
	out = append(out, reranked...)
	out = append(out, items[topK:]...)
	return out, domain.OutcomeOK
}
