package domain

import "time"

// SearchItem is a normalized search hit. Fields carries the raw document
// fields returned by the backend (tags, updated_at, ...).
type SearchItem struct {
	Title  string         `json:"title"`
	URL    string         `json:"url,omitempty"`
	Text   string         `json:"text,omitempty"`
	Score  float64        `json:"score"`
	Source string         `json:"source"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Tags returns the item's tags from its raw fields.
func (i SearchItem) Tags() []string {
	raw, ok := i.Fields["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// SearchRequest is what the pipeline hands to the search backend.
type SearchRequest struct {
	Query       string
	Filters     map[string][]string
	Page        int
	PageSize    int
	Hints       *RewriteOutput
	QueryVector []float32
}

type SearchResult struct {
	Items    []SearchItem
	Total    int
	Degraded bool
}

type QueryRequest struct {
	Query    string              `json:"query"`
	Filters  map[string][]string `json:"filters,omitempty"`
	Page     int                 `json:"page,omitempty"`
	PageSize int                 `json:"pageSize,omitempty"`
}

type Timings struct {
	RewriteMs float64 `json:"rewrite_ms"`
	EmbedMs   float64 `json:"embed_ms"`
	SearchMs  float64 `json:"search_ms"`
	RerankMs  float64 `json:"rerank_ms"`
	TotalMs   float64 `json:"total_ms"`
}

type QueryInfo struct {
	Original  string   `json:"original"`
	Effective string   `json:"effective"`
	Intents   []string `json:"intents,omitempty"`
	PIIFound  []string `json:"pii_found,omitempty"`
}

type QueryResponse struct {
	Results  []SearchItem `json:"results"`
	Total    int          `json:"total"`
	Timings  Timings      `json:"timings"`
	Query    QueryInfo    `json:"query"`
	Degraded bool         `json:"degraded,omitempty"`
}

// StageOutcome is the result class recorded for every pipeline stage.
type StageOutcome string

const (
	OutcomeOK       StageOutcome = "ok"
	OutcomeFallback StageOutcome = "fallback"
	OutcomeSkipped  StageOutcome = "skipped"
)

func Millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
