package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const shardCount = 16

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
}

// TTLCache is an in-process key/value cache with per-entry expiry. Reads of
// expired entries behave as misses and drop the entry. Keys are spread over
// independently locked shards.
type TTLCache[V any] struct {
	name    string
	shards  [shardCount]*shard[V]
	now     func() time.Time
	counter *prometheus.CounterVec

	stopOnce sync.Once
	stop     chan struct{}
}

type Option func(*options)

type options struct {
	now             func() time.Time
	counter         *prometheus.CounterVec
	janitorInterval time.Duration
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCounter records hits and misses on a counter vec labelled
// (cache, result).
func WithCounter(counter *prometheus.CounterVec) Option {
	return func(o *options) { o.counter = counter }
}

// WithJanitor sweeps expired entries every interval until Close.
func WithJanitor(interval time.Duration) Option {
	return func(o *options) { o.janitorInterval = interval }
}

func New[V any](name string, opts ...Option) *TTLCache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &TTLCache[V]{
		name:    name,
		now:     o.now,
		counter: o.counter,
		stop:    make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	if o.janitorInterval > 0 {
		go c.janitor(o.janitorInterval)
	}
	return c
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	s := c.shardFor(key)
	now := c.now()

	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()

	if ok && now.Before(e.expiresAt) {
		c.record("hit")
		return e.value, true
	}
	if ok {
		s.mu.Lock()
		// Another writer may have refreshed the entry in between.
		if cur, still := s.items[key]; still && !now.Before(cur.expiresAt) {
			delete(s.items, key)
		}
		s.mu.Unlock()
	}

	c.record("miss")
	var zero V
	return zero, false
}

func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s := c.shardFor(key)
	s.mu.Lock()
	s.items[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	s.mu.Unlock()
}

func (c *TTLCache[V]) Delete(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet swept.
func (c *TTLCache[V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *TTLCache[V]) Sweep() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.items {
			if !now.Before(e.expiresAt) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (c *TTLCache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *TTLCache[V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *TTLCache[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

func (c *TTLCache[V]) record(result string) {
	if c.counter != nil {
		c.counter.WithLabelValues(c.name, result).Inc()
	}
}
