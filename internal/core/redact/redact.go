// Package redact scrubs personally identifiable information and secrets from
// text before it leaves the process.
package redact

import (
	"regexp"
	"sort"
)

type Kind string

const (
	KindEmail Kind = "email"
	KindToken Kind = "token"
	KindPhone Kind = "phone"
)

type Config struct {
	Email  bool
	Tokens bool
	Phone  bool
}

func DefaultConfig() Config {
	return Config{Email: true, Tokens: true, Phone: false}
}

type Finding struct {
	Kind Kind
}

type Result struct {
	Text     string
	Findings []Finding
}

// Kinds returns the distinct finding kinds in a stable order.
func (r Result) Kinds() []string {
	if len(r.Findings) == 0 {
		return nil
	}
	seen := make(map[Kind]struct{}, len(r.Findings))
	out := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		if _, ok := seen[f.Kind]; ok {
			continue
		}
		seen[f.Kind] = struct{}{}
		out = append(out, string(f.Kind))
	}
	sort.Strings(out)
	return out
}

type rule struct {
	kind        Kind
	pattern     *regexp.Regexp
	replacement string
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// Bearer headers, common vendor key prefixes, AWS access keys and JWTs.
	tokenPattern = regexp.MustCompile(`(?i:bearer\s+[A-Za-z0-9\-._~+/]{16,}=*)|\b(?:sk|pk|rk)-[A-Za-z0-9_\-]{16,}\b|\bgh[pousr]_[A-Za-z0-9]{20,}\b|\bxox[abpr]-[A-Za-z0-9\-]{10,}\b|\bAKIA[0-9A-Z]{16}\b|\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)
	phonePattern = regexp.MustCompile(`\+?\d{1,3}[\s.\-]?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
)

type Redactor struct {
	rules []rule
}

func New(cfg Config) *Redactor {
	r := &Redactor{}
	// Tokens run first: a JWT or bearer value can contain an '@'.
	if cfg.Tokens {
		r.rules = append(r.rules, rule{kind: KindToken, pattern: tokenPattern, replacement: "[TOKEN]"})
	}
	if cfg.Email {
		r.rules = append(r.rules, rule{kind: KindEmail, pattern: emailPattern, replacement: "[EMAIL]"})
	}
	if cfg.Phone {
		r.rules = append(r.rules, rule{kind: KindPhone, pattern: phonePattern, replacement: "[PHONE]"})
	}
	return r
}

func (r *Redactor) Redact(text string) Result {
	out := Result{Text: text}
	if r == nil || text == "" {
		return out
	}
	for _, rl := range r.rules {
		matches := rl.pattern.FindAllStringIndex(out.Text, -1)
		if len(matches) == 0 {
			continue
		}
		for range matches {
			out.Findings = append(out.Findings, Finding{Kind: rl.kind})
		}
		out.Text = rl.pattern.ReplaceAllLiteralString(out.Text, rl.replacement)
	}
	return out
}
