// Package heuristic holds the deterministic, provider-independent part of
// query rewriting: intent detection, synonym expansion and boost hints.
// Every rewrite provider runs it first and merges its own output on top.
package heuristic

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

// Intent patterns are checked in this order; it is also the order of the
// resulting intents and expansions.
var intentOrder = []domain.Intent{
	domain.IntentHowTo,
	domain.IntentIncident,
	domain.IntentOwner,
	domain.IntentAPI,
	domain.IntentPolicy,
}

var intentPatterns = map[domain.Intent]*regexp.Regexp{
	domain.IntentHowTo:    regexp.MustCompile(`(?i)\bhow\s+(to|do\s+i|can\s+i)\b|\bguide\b|\btutorial\b|\bset\s?up\b|\bgetting\s+started\b`),
	domain.IntentIncident: regexp.MustCompile(`(?i)\brunbook\b|\bon-?call\b|\bsev\d\b|\bincident\b|\boutage\b|\bpostmortem\b`),
	domain.IntentOwner:    regexp.MustCompile(`(?i)\bowners?\b|\bowns\b|\bteam\b|\bcontact\b|\bmaintainers?\b`),
	domain.IntentAPI:      regexp.MustCompile(`(?i)\bapis?\b|\bopenapi\b|\bswagger\b|\bgrpc\b|\bgraphql\b|\bendpoints?\b`),
	domain.IntentPolicy:   regexp.MustCompile(`(?i)\bpolic(y|ies)\b|\bsecurity\b|\bcompliance\b|\bgdpr\b|\bsoc\s?2\b`),
}

var intentBoosts = map[domain.Intent]domain.BoostHints{
	domain.IntentHowTo:    {Sources: []string{domain.SourceTechDocs}},
	domain.IntentIncident: {Tags: []string{"runbook"}},
	domain.IntentAPI:      {Sources: []string{domain.SourceAPIs}},
}

type Analyzer struct {
	synonyms SynonymTable
}

func NewAnalyzer(synonyms SynonymTable) *Analyzer {
	if synonyms == nil {
		synonyms = DefaultSynonyms()
	}
	return &Analyzer{synonyms: synonyms}
}

// DetectIntents classifies the query into zero or more intents.
func (a *Analyzer) DetectIntents(query string) []domain.Intent {
	var out []domain.Intent
	for _, intent := range intentOrder {
		if intentPatterns[intent].MatchString(query) {
			out = append(out, intent)
		}
	}
	return out
}

// Analyze runs the heuristic pass. Expansions already present as a token of
// the query are dropped.
func (a *Analyzer) Analyze(query string) domain.RewriteOutput {
	out := domain.RewriteOutput{Query: strings.TrimSpace(query)}
	out.Intents = a.DetectIntents(query)

	present := make(map[string]struct{})
	for _, tok := range tokenize(query) {
		present[tok] = struct{}{}
	}

	for _, intent := range out.Intents {
		for _, syn := range a.synonyms[intent] {
			term := strings.ToLower(strings.TrimSpace(syn))
			if term == "" {
				continue
			}
			if _, ok := present[term]; ok {
				continue
			}
			present[term] = struct{}{}
			out.Expanded = append(out.Expanded, term)
		}
		boost := intentBoosts[intent]
		out.Boosts.Sources = append(out.Boosts.Sources, boost.Sources...)
		out.Boosts.Tags = append(out.Boosts.Tags, boost.Tags...)
	}
	out.Boosts.Sources = dedupe(out.Boosts.Sources)
	out.Boosts.Tags = dedupe(out.Boosts.Tags)
	return out
}

// Merge overlays provider output on the heuristic output. Provider fields
// win on conflict; list fields are concatenated and de-duplicated.
func Merge(base, ai domain.RewriteOutput) domain.RewriteOutput {
	out := domain.RewriteOutput{
		Query:    base.Query,
		PIIFound: base.PIIFound,
	}
	if q := strings.TrimSpace(ai.Query); q != "" {
		out.Query = q
	}

	intents := make([]domain.Intent, 0, len(base.Intents)+len(ai.Intents))
	seen := make(map[domain.Intent]struct{})
	for _, in := range append(append([]domain.Intent(nil), base.Intents...), ai.Intents...) {
		if _, ok := seen[in]; ok || in == "" {
			continue
		}
		seen[in] = struct{}{}
		intents = append(intents, in)
	}
	if len(intents) > 0 {
		out.Intents = intents
	}

	out.Expanded = dedupe(append(append([]string(nil), base.Expanded...), ai.Expanded...))
	out.Boosts.Sources = dedupe(append(append([]string(nil), base.Boosts.Sources...), ai.Boosts.Sources...))
	out.Boosts.Tags = dedupe(append(append([]string(nil), base.Boosts.Tags...), ai.Boosts.Tags...))

	if len(base.Filters) > 0 || len(ai.Filters) > 0 {
		out.Filters = make(domain.FilterHints, len(base.Filters)+len(ai.Filters))
		for k, v := range base.Filters {
			out.Filters[k] = v
		}
		for k, v := range ai.Filters {
			out.Filters[k] = v
		}
	}
	return out
}

// Rewriter is a QueryRewriter that only runs the heuristic pass.
type Rewriter struct {
	analyzer *Analyzer
}

func NewRewriter(analyzer *Analyzer) *Rewriter {
	return &Rewriter{analyzer: analyzer}
}

func (r *Rewriter) Rewrite(_ context.Context, query string, _ map[string][]string) (domain.RewriteOutput, error) {
	return r.analyzer.Analyze(query), nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
