package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/heuristic"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/resilience"
)

func TestRewriterSendsJSONFormatAndMergesHeuristics(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"{\"query\":\"payments runbook\",\"intent\":[\"incident\"],\"expanded\":[\"pager\"],\"filters\":{\"owner\":[\"team-payments\"]}}"}`))
	}))
	defer server.Close()

	rewriter := NewRewriter(New(server.URL, "gen", "embed"), heuristic.NewAnalyzer(heuristic.DefaultSynonyms()))
	out, err := rewriter.Rewrite(context.Background(), "payments outage", map[string][]string{"kind": {"component"}})
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}

	if payload["format"] != "json" {
		t.Fatalf("expected json format, got %v", payload["format"])
	}
	prompt, _ := payload["prompt"].(string)
	if !strings.Contains(prompt, "payments outage") || !strings.Contains(prompt, "kind=component") {
		t.Fatalf("unexpected prompt: %s", prompt)
	}
	if out.Query != "payments runbook" {
		t.Fatalf("expected provider query, got %q", out.Query)
	}
	if out.Filters["owner"][0] != "team-payments" {
		t.Fatalf("expected provider filters, got %+v", out.Filters)
	}
	found := false
	for _, tag := range out.Boosts.Tags {
		if tag == "runbook" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected heuristic incident boost to survive merge, got %+v", out.Boosts)
	}
}

func TestRewriterRejectsNonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"I cannot help with that"}`))
	}))
	defer server.Close()

	_, err := NewRewriter(New(server.URL, "gen", "embed"), nil).Rewrite(context.Background(), "q", nil)
	if !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestEmbedReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	vec, err := NewEmbedder(New(server.URL, "gen", "embed")).Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbedReturnsStatusErrorWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewEmbedder(New(server.URL, "gen", "embed")).Embed(context.Background(), "hello")
	var statusErr *resilience.HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("unexpected error %v", err)
	}
	if !resilience.IsRetryableError(err) {
		t.Fatalf("expected 502 to be retryable")
	}
}
