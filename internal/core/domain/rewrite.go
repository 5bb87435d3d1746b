package domain

type Intent string

const (
	IntentHowTo    Intent = "how-to"
	IntentIncident Intent = "incident"
	IntentOwner    Intent = "owner"
	IntentAPI      Intent = "api"
	IntentPolicy   Intent = "policy"
)

type BoostHints struct {
	Sources []string `json:"sources,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

func (b BoostHints) Empty() bool {
	return len(b.Sources) == 0 && len(b.Tags) == 0
}

// FilterHints maps a field name to its allowed values.
type FilterHints map[string][]string

// RewriteOutput is the result of the query rewrite stage. A zero-value hint
// field means the stage produced no hint of that kind.
type RewriteOutput struct {
	Query    string      `json:"query"`
	Intents  []Intent    `json:"intent,omitempty"`
	Expanded []string    `json:"expanded,omitempty"`
	Boosts   BoostHints  `json:"boosts,omitempty"`
	Filters  FilterHints `json:"filters,omitempty"`
	PIIFound []string    `json:"pii_found,omitempty"`
}

// HasHints reports whether the output carries anything beyond the query text.
func (o RewriteOutput) HasHints() bool {
	return len(o.Intents) > 0 || len(o.Expanded) > 0 || !o.Boosts.Empty() || len(o.Filters) > 0
}

func IntentStrings(intents []Intent) []string {
	if len(intents) == 0 {
		return nil
	}
	out := make([]string, 0, len(intents))
	for _, in := range intents {
		out = append(out, string(in))
	}
	return out
}
