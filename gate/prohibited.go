package gate

import (
	"context"
	"fmt"
	"strings"
)

// DefaultProhibited are the markers blocked when nothing is configured.
var DefaultProhibited = []string{"prod", "payment", "core-db"}

// ParsePatterns splits a comma-separated list, trimming and lowercasing each
// entry and dropping blanks.
func ParsePatterns(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Prohibited blocks any request whose targets contain a denylisted
// substring, case-insensitively.
type Prohibited struct {
	patterns []string
}

// NewProhibited returns a denylist gate for patterns. An empty list blocks
// nothing.
func NewProhibited(patterns ...string) *Prohibited {
	p := &Prohibited{}
	for _, s := range patterns {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			p.patterns = append(p.patterns, s)
		}
	}
	return p
}

// NewDefaultProhibited returns a denylist gate for DefaultProhibited.
func NewDefaultProhibited() *Prohibited {
	return NewProhibited(DefaultProhibited...)
}

// Patterns returns the active denylist.
func (p *Prohibited) Patterns() []string {
	return append([]string(nil), p.patterns...)
}

// Name implements Gate.
func (p *Prohibited) Name() string { return "prohibited" }

// Check implements Gate.
func (p *Prohibited) Check(_ context.Context, req Request) Decision {
	if target, pattern, hit := p.match(req.AllTargets()); hit {
		return deny(p.Name(), req, fmt.Sprintf("target %q matches prohibited pattern %q", target, pattern))
	}
	return allow(p.Name(), req, "no prohibited patterns matched")
}

func (p *Prohibited) match(targets []string) (string, string, bool) {
	for _, t := range targets {
		lt := strings.ToLower(t)
		for _, pat := range p.patterns {
			if strings.Contains(lt, pat) {
				return t, pat, true
			}
		}
	}
	return "", "", false
}
