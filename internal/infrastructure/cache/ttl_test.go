package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	c := New[string]("test")
	defer c.Close()

	c.Set("k", "v", 100*time.Millisecond)
	if got, ok := c.Get("k"); !ok || got != "v" {
		t.Fatalf("expected immediate hit, got %q ok=%v", got, ok)
	}

	time.Sleep(150 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry removed on read, len=%d", c.Len())
	}
}

func TestTTLCacheUsesInjectedClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[int]("test", WithClock(func() time.Time { return now }))

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Hour)
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to be expired")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("expected b to survive, got %d ok=%v", v, ok)
	}
}

func TestTTLCacheSweepRemovesExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[int]("test", WithClock(func() time.Time { return now }))
	for i := 0; i < 40; i++ {
		ttl := time.Minute
		if i%2 == 0 {
			ttl = time.Second
		}
		c.Set(fmt.Sprintf("k%d", i), i, ttl)
	}
	now = now.Add(10 * time.Second)

	if removed := c.Sweep(); removed != 20 {
		t.Fatalf("expected 20 swept entries, got %d", removed)
	}
	if c.Len() != 20 {
		t.Fatalf("expected 20 live entries, got %d", c.Len())
	}
}

func TestTTLCacheIgnoresNonPositiveTTL(t *testing.T) {
	c := New[int]("test")
	c.Set("k", 1, 0)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected zero ttl to skip storing")
	}
}

func TestTTLCacheRecordsHitsAndMisses(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cache_requests_total"}, []string{"cache", "result"})
	c := New[int]("rewrite", WithCounter(counter))
	c.Set("k", 1, time.Minute)
	c.Get("k")
	c.Get("missing")
	c.Get("missing")

	if got := testutil.ToFloat64(counter.WithLabelValues("rewrite", "hit")); got != 1 {
		t.Fatalf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("rewrite", "miss")); got != 2 {
		t.Fatalf("expected 2 misses, got %v", got)
	}
}

func TestTTLCacheConcurrentAccess(t *testing.T) {
	c := New[int]("test", WithJanitor(time.Millisecond))
	defer c.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", i%50)
				c.Set(key, w, time.Millisecond*time.Duration(1+i%3))
				c.Get(key)
			}
		}(w)
	}
	wg.Wait()
}
