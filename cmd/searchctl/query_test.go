package main

import "testing"

func TestParseFiltersGroupsByField(t *testing.T) {
	filters, err := parseFilters([]string{"kind=API", "kind = Component", "owner=team-a"})
	if err != nil {
		t.Fatalf("parse filters: %v", err)
	}
	if got := filters["kind"]; len(got) != 2 || got[1] != "Component" {
		t.Fatalf("unexpected kind filter %v", got)
	}
	if got := filters["owner"]; len(got) != 1 || got[0] != "team-a" {
		t.Fatalf("unexpected owner filter %v", got)
	}
}

func TestParseFiltersRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"kind", "=API", "kind="} {
		if _, err := parseFilters([]string{raw}); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseFiltersEmpty(t *testing.T) {
	filters, err := parseFilters(nil)
	if err != nil || filters != nil {
		t.Fatalf("expected nil filters, got %v %v", filters, err)
	}
}
