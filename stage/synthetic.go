package stage

import (
	"context"

	"github.com/zero-day-ai/reconpipe/artifact"
)

type syntheticHost struct {
	host    string
	ip      string
	ports   []int
	headers map[string]string
}

// syntheticData is canned reconnaissance for offline demos.
var syntheticData = map[string][]syntheticHost{
	"example.com": {
		{"admin.example.com", "192.168.1.10", []int{22, 80, 443},
			map[string]string{"server": "nginx/1.18.0", "x-powered-by": "PHP/7.4"}},
		{"api.example.com", "192.168.1.20", []int{443, 8080},
			map[string]string{"server": "gunicorn", "x-powered-by": "Express"}},
		{"cdn.example.com", "192.168.1.30", []int{80, 443}, nil},
		{"staging.example.com", "192.168.1.40", []int{22, 80, 443, 3000, 5432},
			map[string]string{"server": "Apache/2.4.41", "x-debug-mode": "enabled"}},
	},
}

// SyntheticRecon emits deterministic raw findings for known demo domains and
// nothing for others. It never touches the network.
type SyntheticRecon struct {
	base
	targets []string
}

// NewSyntheticRecon defaults to example.com when targets is empty.
func NewSyntheticRecon(targets []string, opts ...Option) *SyntheticRecon {
	if len(targets) == 0 {
		targets = []string{"example.com"}
	}
	return &SyntheticRecon{base: newBase(opts), targets: targets}
}

// Name implements Stage.
func (s *SyntheticRecon) Name() string { return "recon" }

// Targets implements Targeter. A "targets" list in the previous output
// overrides the configured targets.
func (s *SyntheticRecon) Targets(prev *artifact.Artifact) []string {
	if t := asStrings(input(prev)["targets"]); len(t) > 0 {
		return t
	}
	return append([]string(nil), s.targets...)
}

// Run implements Stage. A "targets" list in the previous output overrides the
// configured targets.
func (s *SyntheticRecon) Run(_ context.Context, prev *artifact.Artifact) (*artifact.Artifact, error) {
	targets := s.Targets(prev)

	findings := []any{}
	for _, domain := range targets {
		for _, h := range syntheticData[domain] {
			headers := map[string]any{}
			for k, v := range h.headers {
				headers[k] = v
			}
			findings = append(findings, map[string]any{
				"host":    h.host,
				"ip":      h.ip,
				"ports":   intsToAny(h.ports),
				"headers": headers,
				"domain":  domain,
			})
		}
	}
	s.logger.Debug("synthetic recon complete")

	return artifact.Next(prev, s.Name(), map[string]any{
		"targets":     stringsToAny(targets),
		"findings":    findings,
		"total_hosts": len(findings),
	}), nil
}
