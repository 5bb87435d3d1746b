package heuristic

import (
	"context"
	"reflect"
	"testing"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

func TestDetectIntents(t *testing.T) {
	a := NewAnalyzer(nil)
	cases := map[string][]domain.Intent{
		"how to deploy the billing service": {domain.IntentHowTo},
		"sev2 runbook for payments":         {domain.IntentIncident},
		"who is the owner of checkout":      {domain.IntentOwner},
		"orders openapi spec":               {domain.IntentAPI},
		"data retention policy":             {domain.IntentPolicy},
		"guide for the payments api":        {domain.IntentHowTo, domain.IntentAPI},
		"billing":                           nil,
	}
	for q, want := range cases {
		got := a.DetectIntents(q)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("DetectIntents(%q) = %v, want %v", q, got, want)
		}
	}
}

func TestAnalyzeDropsExpansionsAlreadyInQuery(t *testing.T) {
	a := NewAnalyzer(SynonymTable{domain.IntentAPI: {"openapi", "rest", "api"}})
	out := a.Analyze("rest api docs")
	if !reflect.DeepEqual(out.Expanded, []string{"openapi"}) {
		t.Fatalf("expected only openapi expansion, got %v", out.Expanded)
	}
	if !reflect.DeepEqual(out.Boosts.Sources, []string{domain.SourceAPIs}) {
		t.Fatalf("expected apis source boost, got %v", out.Boosts.Sources)
	}
}

func TestAnalyzeMapsIntentsToBoosts(t *testing.T) {
	out := NewAnalyzer(nil).Analyze("how to handle an incident")
	if !reflect.DeepEqual(out.Boosts.Sources, []string{domain.SourceTechDocs}) {
		t.Fatalf("expected techdocs boost, got %v", out.Boosts.Sources)
	}
	if !reflect.DeepEqual(out.Boosts.Tags, []string{"runbook"}) {
		t.Fatalf("expected runbook tag boost, got %v", out.Boosts.Tags)
	}
}

func TestMergePrefersProviderAndDedupes(t *testing.T) {
	base := domain.RewriteOutput{
		Query:    "api docs",
		Intents:  []domain.Intent{domain.IntentAPI},
		Expanded: []string{"openapi", "rest"},
		Boosts:   domain.BoostHints{Sources: []string{"apis"}},
		Filters:  domain.FilterHints{"kind": {"api"}},
	}
	ai := domain.RewriteOutput{
		Query:    "api documentation",
		Intents:  []domain.Intent{domain.IntentAPI, domain.IntentHowTo},
		Expanded: []string{"REST", "swagger"},
		Boosts:   domain.BoostHints{Sources: []string{"apis", "techdocs"}, Tags: []string{"openapi"}},
		Filters:  domain.FilterHints{"kind": {"api", "component"}},
	}

	out := Merge(base, ai)
	if out.Query != "api documentation" {
		t.Fatalf("expected provider query, got %q", out.Query)
	}
	if !reflect.DeepEqual(out.Expanded, []string{"openapi", "rest", "swagger"}) {
		t.Fatalf("unexpected expansions %v", out.Expanded)
	}
	if !reflect.DeepEqual(out.Boosts.Sources, []string{"apis", "techdocs"}) {
		t.Fatalf("unexpected source boosts %v", out.Boosts.Sources)
	}
	if !reflect.DeepEqual(out.Filters["kind"], []string{"api", "component"}) {
		t.Fatalf("expected provider filter to win, got %v", out.Filters["kind"])
	}
	if len(out.Intents) != 2 {
		t.Fatalf("expected 2 intents, got %v", out.Intents)
	}
}

func TestMergeKeepsBaseQueryWhenProviderEmpty(t *testing.T) {
	out := Merge(domain.RewriteOutput{Query: "billing"}, domain.RewriteOutput{})
	if out.Query != "billing" || out.HasHints() {
		t.Fatalf("unexpected merge result %+v", out)
	}
}

func TestHeuristicRewriter(t *testing.T) {
	out, err := NewRewriter(NewAnalyzer(nil)).Rewrite(context.Background(), "orders api", nil)
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if out.Query != "orders api" || len(out.Expanded) == 0 {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestParseSynonymsOverridesDefaults(t *testing.T) {
	table, err := ParseSynonyms([]byte("api:\n  - grpc\n  - proto\n"))
	if err != nil {
		t.Fatalf("ParseSynonyms() error = %v", err)
	}
	if !reflect.DeepEqual(table[domain.IntentAPI], []string{"grpc", "proto"}) {
		t.Fatalf("unexpected api synonyms %v", table[domain.IntentAPI])
	}
	if len(table[domain.IntentHowTo]) == 0 {
		t.Fatalf("expected defaults for intents missing from the file")
	}
}

func TestParseSynonymsRejectsUnknownIntent(t *testing.T) {
	_, err := ParseSynonyms([]byte("billing: [invoice]\n"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}
