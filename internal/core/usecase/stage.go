package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

// runWithTimeout races fn against a timer. fn runs on a context detached
// from ctx, so a caller that gives up does not cancel the provider call; its
// late result is dropped into the buffered channel and discarded.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	callCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result{value: zero, err: fmt.Errorf("stage panic: %v", r)}
			}
		}()
		v, err := fn(callCtx)
		done <- result{value: v, err: err}
	}()

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	var zero T
	select {
	case r := <-done:
		return r.value, r.err
	case <-timerC:
		return zero, domain.WrapError(domain.ErrTimeout, "stage", fmt.Errorf("exceeded %s", timeout))
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// cacheKey derives a stable key from its parts.
func cacheKey(prefix string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return prefix + hex.EncodeToString(h.Sum(nil))
}

// filterKey renders filters in canonical order so equal filter sets give
// equal keys regardless of map or value order.
func filterKey(filters map[string][]string) string {
	if len(filters) == 0 {
		return ""
	}
	fields := make([]string, 0, len(filters))
	for k := range filters {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var b strings.Builder
	for _, field := range fields {
		values := append([]string(nil), filters[field]...)
		sort.Strings(values)
		b.WriteString(field)
		b.WriteByte('=')
		b.WriteString(strings.Join(values, ","))
		b.WriteByte(';')
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
