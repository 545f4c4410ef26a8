package stage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/zero-day-ai/reconpipe/artifact"
	"github.com/zero-day-ai/reconpipe/resilience"
)

// Priority is a triage bucket. Higher values are more urgent.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String returns "low", "medium" or "high".
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Thresholds are the minimum scores for the medium and high buckets.
type Thresholds struct {
	High   int `json:"high" koanf:"high"`
	Medium int `json:"medium" koanf:"medium"`
}

// DefaultThresholds are 40 for high and 15 for medium.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 40, Medium: 15}
}

// Validate requires 0 <= Medium <= High.
func (t Thresholds) Validate() error {
	if t.Medium < 0 || t.High < t.Medium {
		return fmt.Errorf("invalid thresholds: need 0 <= medium (%d) <= high (%d)", t.Medium, t.High)
	}
	return nil
}

// Bucket maps score to a priority. A score equal to a threshold lands in the
// higher bucket, so the result never decreases as score grows.
func (t Thresholds) Bucket(score int) Priority {
	switch {
	case score >= t.High:
		return PriorityHigh
	case score >= t.Medium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Finding is the typed view of a normalized record used by rules.
type Finding struct {
	Host    string
	Status  int
	Ports   []int
	Headers map[string]string
	Signals []string
}

// FindingFromRecord reads a normalized record.
func FindingFromRecord(rec map[string]any) Finding {
	f := Finding{
		Host:    strings.ToLower(asString(rec["host"])),
		Ports:   asInts(rec["ports"]),
		Headers: map[string]string{},
		Signals: asStrings(rec["signals"]),
	}
	f.Status, _ = asInt(rec["status"])
	for k, v := range asMap(rec["headers"]) {
		f.Headers[strings.ToLower(k)] = asString(v)
	}
	if _, ok := rec["signals"]; !ok {
		f.Signals = Signals(rec)
	}
	return f
}

// Rule adds Points for every match Count reports.
type Rule struct {
	Name   string
	Points int
	Count  func(Finding) int
}

func signalRule(signal string, points int) Rule {
	return Rule{
		Name:   "signal_" + signal,
		Points: points,
		Count: func(f Finding) int {
			if slices.Contains(f.Signals, signal) {
				return 1
			}
			return 0
		},
	}
}

func portRule(name string, points int, ports ...int) Rule {
	set := make(map[int]bool, len(ports))
	for _, p := range ports {
		set[p] = true
	}
	return Rule{
		Name:   name,
		Points: points,
		Count: func(f Finding) int {
			seen := map[int]bool{}
			n := 0
			for _, p := range f.Ports {
				if set[p] && !seen[p] {
					seen[p] = true
					n++
				}
			}
			return n
		},
	}
}

// DefaultRules is the additive scoring table.
func DefaultRules() []Rule {
	return []Rule{
		signalRule(SignalAdminPanel, 20),
		signalRule(SignalNonProduction, 15),
		signalRule(SignalDebugEnabled, 25),
		signalRule(SignalTechDisclosure, 10),
		portRule("high_risk_port", 15, 22, 23, 3389, 5432, 3306, 27017, 6379),
		portRule("medium_risk_port", 5, 21, 25, 110, 143, 8080, 8443),
		{
			Name:   "auth_status",
			Points: 10,
			Count: func(f Finding) int {
				if f.Status == 401 || f.Status == 403 {
					return 1
				}
				return 0
			},
		},
		{
			Name:   "host_keyword",
			Points: 5,
			Count: func(f Finding) int {
				n := 0
				for _, kw := range []string{"admin", "staging", "dev", "test", "debug"} {
					if strings.Contains(f.Host, kw) {
						n++
					}
				}
				return n
			},
		},
		{
			Name:   "risky_header",
			Points: 5,
			Count: func(f Finding) int {
				n := 0
				for _, h := range []string{"x-debug-mode", "x-powered-by", "server"} {
					if _, ok := f.Headers[h]; ok {
						n++
					}
				}
				return n
			},
		},
		{
			Name:   "debug_header",
			Points: 10,
			Count: func(f Finding) int {
				n := 0
				for h := range f.Headers {
					if strings.Contains(h, "debug") {
						n++
					}
				}
				return n
			},
		},
	}
}

// WithWeights returns a copy of rules with Points replaced for the named
// rules. Unknown names are an error.
func WithWeights(rules []Rule, weights map[string]int) ([]Rule, error) {
	out := slices.Clone(rules)
	for name, pts := range weights {
		idx := slices.IndexFunc(out, func(r Rule) bool { return r.Name == name })
		if idx < 0 {
			return nil, fmt.Errorf("unknown triage rule %q", name)
		}
		if pts < 0 {
			return nil, fmt.Errorf("triage rule %q: negative weight %d", name, pts)
		}
		out[idx].Points = pts
	}
	return out, nil
}

// ErrNoInput is returned by stages that need a previous artifact.
var ErrNoInput = errors.New("stage: no input artifact")

// Triage scores normalized records with an additive rule table and buckets
// them by Thresholds.
type Triage struct {
	base
	rules      []Rule
	thresholds Thresholds
}

// NewTriage uses DefaultRules when rules is nil.
func NewTriage(rules []Rule, th Thresholds, opts ...Option) *Triage {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Triage{base: newBase(opts), rules: rules, thresholds: th}
}

// Name implements Stage.
func (t *Triage) Name() string { return "triage" }

// Score returns the total score and the names of the rules that matched.
func (t *Triage) Score(f Finding) (int, []string) {
	total := 0
	matched := []string{}
	for _, r := range t.rules {
		if n := r.Count(f); n > 0 && r.Points != 0 {
			total += n * r.Points
			matched = append(matched, r.Name)
		}
	}
	return total, matched
}

// Run implements Stage. It reads "normalized", falling back to "findings".
// Records that are not objects are logged and counted in summary.skipped.
// A missing previous artifact is a permanent failure.
func (t *Triage) Run(_ context.Context, prev *artifact.Artifact) (*artifact.Artifact, error) {
	if prev == nil {
		return nil, resilience.Permanent(ErrNoInput)
	}
	in := input(prev)
	records := asSlice(in["normalized"])
	if len(records) == 0 {
		records = asSlice(in["findings"])
	}

	type scored struct {
		rec   map[string]any
		host  string
		score int
	}
	var all []scored
	skipped := 0
	for i, item := range records {
		rec := asMap(item)
		if rec == nil {
			skipped++
			t.logger.Warn("skipping triage record", zap.Int("index", i), zap.String("reason", "not an object"))
			continue
		}
		f := FindingFromRecord(rec)
		score, matched := t.Score(f)

		out := make(map[string]any, len(rec)+3)
		for k, v := range rec {
			out[k] = v
		}
		out["risk_score"] = score
		out["risk_level"] = t.thresholds.Bucket(score).String()
		out["matched_rules"] = stringsToAny(matched)
		all = append(all, scored{rec: out, host: asString(rec["host"]), score: score})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	findings := make([]any, 0, len(all))
	buckets := map[Priority][]any{PriorityHigh: {}, PriorityMedium: {}, PriorityLow: {}}
	for _, s := range all {
		findings = append(findings, s.rec)
		p := t.thresholds.Bucket(s.score)
		buckets[p] = append(buckets[p], s.host)
	}

	return artifact.Next(prev, t.Name(), map[string]any{
		"scored_findings": findings,
		"high_risk":       buckets[PriorityHigh],
		"medium_risk":     buckets[PriorityMedium],
		"low_risk":        buckets[PriorityLow],
		"summary": map[string]any{
			"total":   len(findings),
			"high":    len(buckets[PriorityHigh]),
			"medium":  len(buckets[PriorityMedium]),
			"low":     len(buckets[PriorityLow]),
			"skipped": skipped,
		},
		"thresholds": map[string]any{"high": t.thresholds.High, "medium": t.thresholds.Medium},
	}), nil
}
