package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const remoteWriteTimeout = 2 * time.Second

// remoteStore is the subset of RedisStore the vector cache needs.
type remoteStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// VectorCache keeps embeddings in process and, when a remote store is
// configured, in a shared tier behind it. Remote errors degrade to misses.
type VectorCache struct {
	local  *TTLCache[[]float32]
	remote remoteStore

	pending sync.WaitGroup
}

func NewVectorCache(local *TTLCache[[]float32], remote remoteStore) *VectorCache {
	return &VectorCache{local: local, remote: remote}
}

func (c *VectorCache) Get(ctx context.Context, key string) ([]float32, bool) {
	if vec, ok := c.local.Get(key); ok {
		return vec, true
	}
	if c.remote == nil {
		return nil, false
	}

	data, err := c.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			slog.Warn("vector_cache_remote_get_failed", "error", err)
		}
		return nil, false
	}
	vec, err := bytesToVector(data)
	if err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

// Set stores vec locally for ttl. The remote write runs in the background
// on a detached context and is best effort.
func (c *VectorCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) {
	c.local.Set(key, vec, ttl)
	if c.remote == nil {
		return
	}

	data := vectorToBytes(vec)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteWriteTimeout)
		defer cancel()
		if err := c.remote.SetWithTTL(writeCtx, key, data, ttl); err != nil {
			slog.Warn("vector_cache_remote_set_failed", "error", err)
		}
	}()
}

// Flush waits for background remote writes to finish.
func (c *VectorCache) Flush() {
	c.pending.Wait()
}
