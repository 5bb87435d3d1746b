package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

func TestObserveIndexingCountsPagesAndItems(t *testing.T) {
	m := New("test")

	m.ObserveIndexing("catalog", domain.IngestStats{Pages: 3, Items: 1200}, 2*time.Second, nil)
	m.ObserveIndexing("catalog", domain.IngestStats{Pages: 1}, time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(m.ingestPages.WithLabelValues("catalog")); got != 4 {
		t.Fatalf("expected 4 pages, got %v", got)
	}
	if got := testutil.ToFloat64(m.ingestItems.WithLabelValues("catalog")); got != 1200 {
		t.Fatalf("expected 1200 items, got %v", got)
	}
	if got := testutil.ToFloat64(m.ingestRuns.WithLabelValues("catalog", "error")); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
}

func TestObserveQuerySplitsDegraded(t *testing.T) {
	m := New("test")
	m.ObserveStage("rewrite", domain.OutcomeFallback, 10*time.Millisecond)
	m.ObserveQuery(time.Millisecond, 0, true)
	m.ObserveQuery(time.Millisecond, 5, false)
	m.ObserveQuery(time.Millisecond, 3, false)

	if got := testutil.ToFloat64(m.queriesTotal.WithLabelValues("true")); got != 1 {
		t.Fatalf("expected 1 degraded query, got %v", got)
	}
	if got := testutil.ToFloat64(m.queriesTotal.WithLabelValues("false")); got != 2 {
		t.Fatalf("expected 2 healthy queries, got %v", got)
	}
	if got := testutil.CollectAndCount(m.stageDuration); got != 1 {
		t.Fatalf("expected one stage series, got %d", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New("test")
	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Post("/admin/reindex/{source}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, source := range []string{"catalog", "apis"} {
		req := httptest.NewRequest(http.MethodPost, "/admin/reindex/"+source, nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues(http.MethodPost, "/admin/reindex/{source}", "202"))
	if got != 2 {
		t.Fatalf("expected 2 requests on the route pattern, got %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New("test")
	m.RecordBreakerTransition("embed", "OPEN")
	m.CacheRequests().WithLabelValues("rewrite", "hit").Inc()
	m.SearchDegraded().Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`searchorch_breaker_transitions_total{breaker="embed",service="test",to="OPEN"} 1`,
		`searchorch_cache_requests_total{cache="rewrite",result="hit",service="test"} 1`,
		`searchorch_search_backend_degraded_total{service="test"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}
