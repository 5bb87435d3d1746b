// Package hashembed is a dependency-free embedding provider. It hashes
// tokens into a fixed number of buckets and L2-normalizes the result, so
// equal texts always map to equal vectors.
package hashembed

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

const DefaultDimensions = 384

type Embedder struct {
	dims int
}

func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

func (e *Embedder) Dimensions() int { return e.dims }

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "hash embed", errors.New("text has no tokens"))
	}

	vec := make([]float64, e.dims)
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		if sum>>63 == 1 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dims)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}
