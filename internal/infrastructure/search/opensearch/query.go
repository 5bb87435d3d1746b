package opensearch

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

const (
	minKNNCandidates = 100
	embeddingField   = "embedding"
	// knnEngine must support efficient filtering, since filters are placed
	// inside the knn clause. nmslib rejects such queries.
	knnEngine = "lucene"
)

// lexicalFields are the simple_query_string targets with their weights.
var lexicalFields = []string{"title^3", "text", "tags^2"}

type BoostWeights struct {
	Source float64
	Tag    float64
}

// BuildSearchBody renders a _search request. A non-empty query vector
// switches to a k-NN query; otherwise a lexical bool query is built with
// expansion terms OR-ed in and boost clauses for hinted sources and tags.
func BuildSearchBody(req domain.SearchRequest, weights BoostWeights) map[string]any {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	page := req.Page
	if page < 0 {
		page = 0
	}

	var hints domain.RewriteOutput
	if req.Hints != nil {
		hints = *req.Hints
	}
	filters := buildFilters(req.Filters, hints.Filters)

	body := map[string]any{
		"from":             page * pageSize,
		"size":             pageSize,
		"track_total_hits": true,
		"_source": map[string]any{
			"excludes": []string{embeddingField},
		},
		"highlight": map[string]any{
			"fields": map[string]any{
				"text": map[string]any{},
			},
		},
	}

	if len(req.QueryVector) > 0 {
		knn := map[string]any{
			"vector": req.QueryVector,
			"k":      max(minKNNCandidates, 2*pageSize),
		}
		if len(filters) > 0 {
			knn["filter"] = map[string]any{"bool": map[string]any{"filter": filters}}
		}
		body["query"] = map[string]any{
			"knn": map[string]any{embeddingField: knn},
		}
		return body
	}

	boolQuery := map[string]any{
		"must": []any{
			map[string]any{
				"simple_query_string": map[string]any{
					"query":            LexicalQuery(req.Query, hints.Expanded),
					"fields":           lexicalFields,
					"default_operator": "or",
				},
			},
		},
	}
	if should := boostClauses(hints.Boosts, weights); len(should) > 0 {
		boolQuery["should"] = should
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	body["query"] = map[string]any{"bool": boolQuery}
	return body
}

// LexicalQuery joins the query and its expansions with the OR operator.
// Expansion terms that are not a single plain word are quoted.
func LexicalQuery(query string, expanded []string) string {
	query = strings.TrimSpace(query)
	parts := make([]string, 0, len(expanded)+1)
	if query != "" {
		if len(expanded) > 0 && strings.ContainsAny(query, " \t") {
			parts = append(parts, "("+query+")")
		} else {
			parts = append(parts, query)
		}
	}
	seen := map[string]struct{}{strings.ToLower(query): {}}
	for _, term := range expanded {
		term = strings.TrimSpace(strings.ReplaceAll(term, `"`, ""))
		if term == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(term)]; ok {
			continue
		}
		seen[strings.ToLower(term)] = struct{}{}
		if !isPlainWord(term) {
			term = `"` + term + `"`
		}
		parts = append(parts, term)
	}
	return strings.Join(parts, " | ")
}

func isPlainWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

func boostClauses(boosts domain.BoostHints, weights BoostWeights) []any {
	var out []any
	for _, source := range boosts.Sources {
		out = append(out, map[string]any{
			"term": map[string]any{"source": map[string]any{"value": source, "boost": weights.Source}},
		})
	}
	for _, tag := range boosts.Tags {
		out = append(out, map[string]any{
			"term": map[string]any{"tags": map[string]any{"value": tag, "boost": weights.Tag}},
		})
	}
	return out
}

// buildFilters merges caller filters with hinted filters. Fields are
// emitted in sorted order so the body is deterministic.
func buildFilters(caller map[string][]string, hinted domain.FilterHints) []any {
	merged := make(map[string][]string)
	add := func(src map[string][]string) {
		for field, values := range src {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			for _, v := range values {
				if v = strings.TrimSpace(v); v != "" && !contains(merged[field], v) {
					merged[field] = append(merged[field], v)
				}
			}
		}
	}
	add(caller)
	add(hinted)

	fields := make([]string, 0, len(merged))
	for field, values := range merged {
		if len(values) > 0 {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	out := make([]any, 0, len(fields))
	for _, field := range fields {
		values := merged[field]
		if len(values) == 1 {
			out = append(out, map[string]any{"term": map[string]any{field: values[0]}})
			continue
		}
		out = append(out, map[string]any{"terms": map[string]any{field: values}})
	}
	return out
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
