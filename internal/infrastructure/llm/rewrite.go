// Package llm holds the pieces shared by the AI rewrite providers: the
// prompt, the JSON contract and its parsing.
package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

// RewriteSystemPrompt is sent as the system message (or prompt preamble) to
// every rewrite provider.
const RewriteSystemPrompt = `You rewrite search queries for an internal developer portal.
The portal indexes software catalog entities (source "catalog"), technical documentation (source "techdocs") and API descriptors (source "apis").
Return strict JSON object with keys:
query (string, the improved query), intent (array of: how-to, incident, owner, api, policy),
expanded (array of extra search terms), boosts (object with sources and tags arrays),
filters (object mapping field name to array of allowed values; fields: kind, namespace, owner, system, lifecycle, tags).
No markdown, no extra keys. Keep the query short.`

type rewriteWire struct {
	Query    string              `json:"query"`
	Intent   []string            `json:"intent"`
	Expanded []string            `json:"expanded"`
	Boosts   domain.BoostHints   `json:"boosts"`
	Filters  map[string][]string `json:"filters"`
}

// BuildRewritePrompt renders the user part of the rewrite request.
func BuildRewritePrompt(query string, filters map[string][]string) string {
	var b strings.Builder
	b.WriteString("Query:\n")
	b.WriteString(query)
	if len(filters) > 0 {
		keys := make([]string, 0, len(filters))
		for k := range filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n\nActive filters:\n")
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("%s=%s\n", k, strings.Join(filters[k], ",")))
		}
	}
	return b.String()
}

// ParseRewrite decodes a provider response. Unknown intents are dropped.
func ParseRewrite(raw string) (domain.RewriteOutput, error) {
	var wire rewriteWire
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &wire); err != nil {
		return domain.RewriteOutput{}, fmt.Errorf("parse rewrite json: %w", err)
	}

	out := domain.RewriteOutput{
		Query:    strings.TrimSpace(wire.Query),
		Expanded: wire.Expanded,
		Boosts:   wire.Boosts,
	}
	for _, in := range wire.Intent {
		switch intent := domain.Intent(strings.ToLower(strings.TrimSpace(in))); intent {
		case domain.IntentHowTo, domain.IntentIncident, domain.IntentOwner, domain.IntentAPI, domain.IntentPolicy:
			out.Intents = append(out.Intents, intent)
		}
	}
	if len(wire.Filters) > 0 {
		out.Filters = domain.FilterHints(wire.Filters)
	}
	return out, nil
}

func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
