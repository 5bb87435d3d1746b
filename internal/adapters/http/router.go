package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/search-orchestrator/internal/config"
	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/ports"
	"github.com/kirillkom/search-orchestrator/internal/observability/metrics"
)

const (
	maxBodyBytes        = 8 << 20
	backpressureTimeout = 50 * time.Millisecond
)

type Router struct {
	cfg     config.Config
	query   ports.QueryService
	admin   ports.IndexAdmin
	metrics *metrics.Metrics
}

func NewRouter(
	cfg config.Config,
	query ports.QueryService,
	admin ports.IndexAdmin,
	m *metrics.Metrics,
) *Router {
	return &Router{
		cfg:     cfg,
		query:   query,
		admin:   admin,
		metrics: m,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
	}

	r.Get("/health", rt.health)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(rateLimitMiddleware(rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst))
		r.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, backpressureTimeout)
		})

		r.Post("/query", rt.runQuery)

		r.Group(func(r chi.Router) {
			r.Use(adminAuthMiddleware(rt.cfg.AdminAPIKey))
			r.Post("/index", rt.indexDocs)
			r.Post("/admin/ensure-template", rt.ensureTemplate)
			r.Post("/admin/reindex/{source}", rt.reindex)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	return r
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) runQuery(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode query", err))
		return
	}

	resp, err := rt.query.Query(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type indexRequest struct {
	Source string              `json:"source"`
	Docs   []domain.IndexedDoc `json:"docs"`
}

func (rt *Router) indexDocs(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode index request", err))
		return
	}

	indexed, err := rt.admin.IndexDocs(r.Context(), req.Source, req.Docs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": req.Source, "indexed": indexed})
}

func (rt *Router) ensureTemplate(w http.ResponseWriter, r *http.Request) {
	if err := rt.admin.EnsureTemplate(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) reindex(w http.ResponseWriter, r *http.Request) {
	source := strings.ToLower(chi.URLParam(r, "source"))
	result, err := rt.admin.Reindex(r.Context(), source)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(out); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return errors.New("invalid json")
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
