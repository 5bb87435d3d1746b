package heuristic

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

// SynonymTable maps an intent to the terms OR-ed into the lexical query when
// that intent is detected.
type SynonymTable map[domain.Intent][]string

func DefaultSynonyms() SynonymTable {
	return SynonymTable{
		domain.IntentHowTo:    {"guide", "tutorial", "docs"},
		domain.IntentIncident: {"runbook", "playbook", "on-call", "postmortem"},
		domain.IntentOwner:    {"team", "maintainer", "contact"},
		domain.IntentAPI:      {"openapi", "swagger", "rest", "endpoint"},
		domain.IntentPolicy:   {"security", "compliance", "standard"},
	}
}

// LoadSynonyms reads a YAML file of the form
//
//	api: [openapi, rest]
//	incident: [runbook]
//
// Intents missing from the file keep their default synonyms.
func LoadSynonyms(path string) (SynonymTable, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read synonyms file: %w", err)
	}
	return ParseSynonyms(data)
}

func ParseSynonyms(data []byte) (SynonymTable, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse synonyms: %w", err)
	}

	table := DefaultSynonyms()
	for name, terms := range raw {
		intent := domain.Intent(name)
		if _, ok := intentPatterns[intent]; !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse synonyms", fmt.Errorf("unknown intent %q", name))
		}
		table[intent] = terms
	}
	return table, nil
}
