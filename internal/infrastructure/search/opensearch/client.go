package opensearch

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/resilience"
)

type Config struct {
	URL          string
	Username     string
	Password     string
	BearerToken  string
	InsecureTLS  bool
	IndexPrefix  string
	TemplateName string

	VectorEnabled    bool
	VectorDimensions int

	Boosts  BoostWeights
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	degraded   prometheus.Counter
	now        func() time.Time
}

type Option func(*Client)

// WithDegradedCounter counts searches answered with an empty degraded result.
func WithDegradedCounter(counter prometheus.Counter) Option {
	return func(c *Client) { c.degraded = counter }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = "portal"
	}
	if cfg.TemplateName == "" {
		cfg.TemplateName = cfg.IndexPrefix + "-template"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // dev clusters with self-signed certs
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IndexName is the concrete index for a source.
func (c *Client) IndexName(source string) string {
	return c.cfg.IndexPrefix + "-" + source
}

// Search runs the query against every source index. Transport failures and
// backend 5xx degrade to an empty result flagged Degraded.
func (c *Client) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
	body, err := json.Marshal(BuildSearchBody(req, c.cfg.Boosts))
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("marshal search body: %w", err)
	}

	path := "/" + c.cfg.IndexPrefix + "-*/_search"
	resp, err := c.do(ctx, http.MethodPost, path, "application/json", body)
	if err != nil {
		return c.degrade(err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return c.degrade(statusError("search", resp)), nil
	}
	if resp.StatusCode >= 300 {
		return domain.SearchResult{}, statusError("search", resp)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	return c.mapHits(parsed), nil
}

func (c *Client) degrade(err error) domain.SearchResult {
	slog.Warn("search_backend_degraded", "error", err)
	if c.degraded != nil {
		c.degraded.Inc()
	}
	return domain.SearchResult{Items: []domain.SearchItem{}, Degraded: true}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Index     string              `json:"_index"`
			ID        string              `json:"_id"`
			Score     float64             `json:"_score"`
			Source    map[string]any      `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func (c *Client) mapHits(parsed searchResponse) domain.SearchResult {
	items := make([]domain.SearchItem, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		fields := hit.Source
		if fields == nil {
			fields = map[string]any{}
		}
		delete(fields, embeddingField)

		text := stringField(fields, "text")
		if fragments := hit.Highlight["text"]; len(fragments) > 0 {
			text = strings.Join(fragments, " … ")
		}
		source := stringField(fields, "source")
		if source == "" {
			source = hit.Index
		}

		items = append(items, domain.SearchItem{
			Title:  stringField(fields, "title"),
			URL:    stringField(fields, "url"),
			Text:   text,
			Score:  hit.Score,
			Source: source,
			Fields: fields,
		})
	}
	return domain.SearchResult{Items: items, Total: parsed.Hits.Total.Value}
}

// BulkIndex writes docs into the source's index with one _bulk call and
// returns the number of documents submitted. Per-item outcomes are logged,
// not returned.
func (c *Client) BulkIndex(ctx context.Context, source string, docs []domain.IndexedDoc) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	if strings.TrimSpace(source) == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bulk index", errors.New("source is required"))
	}

	payload, err := c.bulkPayload(source, docs)
	if err != nil {
		return 0, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/_bulk", "application/x-ndjson", payload)
	if err != nil {
		return 0, fmt.Errorf("search backend bulk request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, statusError("bulk", resp)
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.Errors {
		failed := 0
		for _, item := range parsed.Items {
			for _, res := range item {
				if res.Status >= 300 {
					failed++
				}
			}
		}
		slog.Warn("search_backend_bulk_partial_failure", "source", source, "submitted", len(docs), "failed", failed)
	}
	return len(docs), nil
}

func (c *Client) bulkPayload(source string, docs []domain.IndexedDoc) ([]byte, error) {
	index := c.IndexName(source)
	ingestedAt := c.now().UTC().Format(time.RFC3339)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		action := map[string]any{"_index": index, "_id": docID(doc)}
		if err := enc.Encode(map[string]any{"index": action}); err != nil {
			return nil, fmt.Errorf("encode bulk action: %w", err)
		}

		if !c.cfg.VectorEnabled {
			doc.Embedding = nil
		}
		body := bulkDoc{IndexedDoc: doc, Source: source, IngestedAt: ingestedAt}
		if err := enc.Encode(body); err != nil {
			return nil, fmt.Errorf("encode bulk doc %q: %w", doc.Title, err)
		}
	}
	return buf.Bytes(), nil
}

type bulkDoc struct {
	domain.IndexedDoc
	Source     string `json:"source"`
	IngestedAt string `json:"ingested_at"`
}

// docID keeps re-ingestion idempotent: explicit ids win, otherwise the id is
// derived from the URL.
func docID(doc domain.IndexedDoc) string {
	if doc.ID != "" {
		return doc.ID
	}
	sum := sha1.Sum([]byte(doc.URL))
	return hex.EncodeToString(sum[:])
}

// EnsureIndexTemplate creates or replaces the index template that covers
// every source index.
func (c *Client) EnsureIndexTemplate(ctx context.Context) error {
	body, err := json.Marshal(c.templateBody())
	if err != nil {
		return fmt.Errorf("marshal index template: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, "/_index_template/"+c.cfg.TemplateName, "application/json", body)
	if err != nil {
		return fmt.Errorf("search backend template request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError("ensure template", resp)
	}
	return nil
}

func (c *Client) templateBody() map[string]any {
	keyword := map[string]any{"type": "keyword"}
	properties := map[string]any{
		"id": keyword,
		"title": map[string]any{
			"type":   "text",
			"fields": map[string]any{"raw": map[string]any{"type": "keyword", "ignore_above": 256}},
		},
		"text":        map[string]any{"type": "text"},
		"url":         keyword,
		"tags":        keyword,
		"source":      keyword,
		"kind":        keyword,
		"namespace":   keyword,
		"owner":       keyword,
		"system":      keyword,
		"lifecycle":   keyword,
		"updated_at":  map[string]any{"type": "date"},
		"ingested_at": map[string]any{"type": "date"},
	}

	settings := map[string]any{}
	if c.cfg.VectorEnabled && c.cfg.VectorDimensions > 0 {
		settings["index"] = map[string]any{"knn": true}
		properties[embeddingField] = map[string]any{
			"type":      "knn_vector",
			"dimension": c.cfg.VectorDimensions,
			"method": map[string]any{
				"name":       "hnsw",
				"space_type": "cosinesimil",
				"engine":     knnEngine,
			},
		}
	}

	return map[string]any{
		"index_patterns": []string{c.cfg.IndexPrefix + "-*"},
		"template": map[string]any{
			"settings": settings,
			"mappings": map[string]any{"properties": properties},
		},
	}
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	switch {
	case c.cfg.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	case c.cfg.Username != "":
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
	return c.httpClient.Do(req)
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &resilience.HTTPStatusError{
		Operation:  "search backend " + operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
