package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

type rewriterFake struct {
	mu    sync.Mutex
	calls int
	query string
	out   domain.RewriteOutput
	err   error
	delay time.Duration
}

func (f *rewriterFake) Rewrite(_ context.Context, query string, _ map[string][]string) (domain.RewriteOutput, error) {
	f.mu.Lock()
	f.calls++
	f.query = query
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return domain.RewriteOutput{}, f.err
	}
	return f.out, nil
}

func (f *rewriterFake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type embedderFake struct {
	mu    sync.Mutex
	calls int
	texts []string
	vec   []float32
	err   error
	delay time.Duration
}

func (f *embedderFake) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *embedderFake) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type memRewriteCache struct {
	mu    sync.Mutex
	items map[string]domain.RewriteOutput
}

func newMemRewriteCache() *memRewriteCache {
	return &memRewriteCache{items: map[string]domain.RewriteOutput{}}
}

func (c *memRewriteCache) Get(key string) (domain.RewriteOutput, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *memRewriteCache) Set(key string, value domain.RewriteOutput, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

type memVectorCache struct {
	mu    sync.Mutex
	items map[string][]float32
}

func newMemVectorCache() *memVectorCache {
	return &memVectorCache{items: map[string][]float32{}}
}

func (c *memVectorCache) Get(_ context.Context, key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *memVectorCache) Set(_ context.Context, key string, vec []float32, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = vec
}

// callerFake records the operations it guards and runs fn once.
type callerFake struct {
	mu  sync.Mutex
	ops []string
}

func (c *callerFake) Call(ctx context.Context, operation string, fn func(context.Context) error) error {
	c.mu.Lock()
	c.ops = append(c.ops, operation)
	c.mu.Unlock()
	return fn(ctx)
}

type backendFake struct {
	mu         sync.Mutex
	requests   []domain.SearchRequest
	result     domain.SearchResult
	err        error
	bulkCalls  int
	bulkSizes  []int
	bulkDocs   [][]domain.IndexedDoc
	bulkErrAt  int
	bulkErr    error
	templateOK bool
}

func (b *backendFake) Search(_ context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	return b.result, b.err
}

func (b *backendFake) BulkIndex(_ context.Context, _ string, docs []domain.IndexedDoc) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bulkCalls++
	if b.bulkErr != nil && b.bulkCalls == b.bulkErrAt {
		return 0, b.bulkErr
	}
	b.bulkSizes = append(b.bulkSizes, len(docs))
	b.bulkDocs = append(b.bulkDocs, docs)
	return len(docs), nil
}

func (b *backendFake) EnsureIndexTemplate(context.Context) error {
	b.templateOK = true
	return nil
}

type stageEvent struct {
	stage   string
	outcome domain.StageOutcome
}

type observerFake struct {
	mu       sync.Mutex
	stages   []stageEvent
	queries  int
	degraded bool
}

func (o *observerFake) ObserveStage(stage string, outcome domain.StageOutcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stageEvent{stage: stage, outcome: outcome})
}

func (o *observerFake) ObserveQuery(_ time.Duration, _ int, degraded bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queries++
	o.degraded = degraded
}

func (o *observerFake) outcome(stage string) domain.StageOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ev := range o.stages {
		if ev.stage == stage {
			return ev.outcome
		}
	}
	return ""
}

func items(n int) []domain.SearchItem {
	out := make([]domain.SearchItem, n)
	for i := range out {
		out[i] = domain.SearchItem{Title: fmt.Sprintf("item %d", i), URL: fmt.Sprintf("https://portal/%d", i), Score: float64(n - i)}
	}
	return out
}

// slowVectorCache never answers a lookup before delay has passed.
type slowVectorCache struct {
	memVectorCache
	delay time.Duration
}

func newSlowVectorCache(delay time.Duration) *slowVectorCache {
	return &slowVectorCache{memVectorCache: memVectorCache{items: map[string][]float32{}}, delay: delay}
}

func (c *slowVectorCache) Get(ctx context.Context, key string) ([]float32, bool) {
	time.Sleep(c.delay)
	return c.memVectorCache.Get(ctx, key)
}
