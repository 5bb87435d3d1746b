package hashembed

import (
	"context"
	"math"
	"testing"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

func TestEmbedIsDeterministicAndNormalized(t *testing.T) {
	e := New(64)
	a, err := e.Embed(context.Background(), "Payments API runbook")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, _ := e.Embed(context.Background(), "payments api RUNBOOK")
	if len(a) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(a))
	}

	var norm float64
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected case-insensitive determinism at %d", i)
		}
		norm += float64(a[i]) * float64(a[i])
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %v", norm)
	}
}

func TestEmbedRejectsEmptyText(t *testing.T) {
	_, err := New(8).Embed(context.Background(), "  ,, ")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestNewDefaultsDimensions(t *testing.T) {
	if New(0).Dimensions() != DefaultDimensions {
		t.Fatalf("expected default dimensions")
	}
}
