package toolkit

import (
	"context"
	"sort"
	"strings"

	"github.com/zero-day-ai/reconpipe/tool"
)

var (
	legacyServices = map[string]string{
		"telnet": "Unencrypted remote access",
		"ftp":    "Unencrypted file transfer",
		"rsh":    "Unencrypted remote shell",
		"rlogin": "Unencrypted remote login",
	}

	eolSoftware = []struct{ pattern, reason string }{
		{"Apache httpd 2.2", "End-of-life Apache version"},
		{"OpenSSH 6.", "Outdated SSH version"},
		{"OpenSSH 5.", "Critically outdated SSH version"},
	}

	nonStandardPorts = map[int]bool{
		8080: true, 8443: true, 8000: true, 8888: true,
		9000: true, 9090: true, 4443: true, 8008: true,
	}
)

// Scan finding points and priority thresholds.
const (
	PointsLegacyService  = 50
	PointsEOLSoftware    = 40
	PointsNonStandard    = 20
	PointsOddCombination = 25

	ScanHighThreshold   = 40
	ScanMediumThreshold = 15
)

// ScanFinding is one risk indicator on a host.
type ScanFinding struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Port     int    `json:"port,omitempty"`
	Service  string `json:"service,omitempty"`
	Version  string `json:"version,omitempty"`
	Reason   string `json:"reason"`
}

// HostAnalysis is the triage result for one host.
type HostAnalysis struct {
	Hostname     string        `json:"hostname"`
	Priority     string        `json:"priority"`
	Score        int           `json:"score"`
	Findings     []ScanFinding `json:"findings"`
	Services     []Service     `json:"services"`
	ServiceCount int           `json:"service_count"`
}

// TriageSummary counts hosts per priority.
type TriageSummary struct {
	TotalHosts  int `json:"total_hosts"`
	HighCount   int `json:"high_count"`
	MediumCount int `json:"medium_count"`
	LowCount    int `json:"low_count"`
}

// TriageResult groups analyses by priority.
type TriageResult struct {
	HighPriority   []HostAnalysis `json:"high_priority"`
	MediumPriority []HostAnalysis `json:"medium_priority"`
	LowPriority    []HostAnalysis `json:"low_priority"`
	Summary        TriageSummary  `json:"summary"`
}

// AnalyzeHosts scores every host and buckets it.
func AnalyzeHosts(hosts []Host) TriageResult {
	res := TriageResult{
		HighPriority:   []HostAnalysis{},
		MediumPriority: []HostAnalysis{},
		LowPriority:    []HostAnalysis{},
		Summary:        TriageSummary{TotalHosts: len(hosts)},
	}
	for _, h := range hosts {
		a := AnalyzeHost(h)
		switch a.Priority {
		case "high":
			res.HighPriority = append(res.HighPriority, a)
			res.Summary.HighCount++
		case "medium":
			res.MediumPriority = append(res.MediumPriority, a)
			res.Summary.MediumCount++
		default:
			res.LowPriority = append(res.LowPriority, a)
			res.Summary.LowCount++
		}
	}
	return res
}

// AnalyzeHost scores one host. Points are additive: legacy services,
// end-of-life versions, non-standard ports and FTP next to a web server.
func AnalyzeHost(h Host) HostAnalysis {
	hostname := h.Hostname
	if hostname == "" {
		hostname = "unknown"
	}
	services := h.Services
	if services == nil {
		services = []Service{}
	}
	a := HostAnalysis{Hostname: hostname, Findings: []ScanFinding{}, Services: services, ServiceCount: len(services)}

	names := make(map[string]bool, len(services))
	for _, s := range services {
		name := strings.ToLower(s.Service)
		names[name] = true
		if reason, ok := legacyServices[name]; ok {
			a.Findings = append(a.Findings, ScanFinding{
				Type: "legacy_service", Severity: "high", Port: s.Port, Service: name, Reason: reason,
			})
			a.Score += PointsLegacyService
		}
	}
	for _, s := range services {
		for _, eol := range eolSoftware {
			if strings.Contains(s.Version, eol.pattern) {
				a.Findings = append(a.Findings, ScanFinding{
					Type: "eol_software", Severity: "high", Port: s.Port, Version: s.Version, Reason: eol.reason,
				})
				a.Score += PointsEOLSoftware
			}
		}
	}
	for _, s := range services {
		if nonStandardPorts[s.Port] {
			a.Findings = append(a.Findings, ScanFinding{
				Type: "non_standard_port", Severity: "medium", Port: s.Port, Service: s.Service,
				Reason: "Non-standard port may indicate admin/management interface",
			})
			a.Score += PointsNonStandard
		}
	}
	if names["ftp"] && (names["http"] || names["https"]) {
		a.Findings = append(a.Findings, ScanFinding{
			Type: "odd_combination", Severity: "medium", Reason: "FTP exposed alongside web server",
		})
		a.Score += PointsOddCombination
	}

	switch {
	case a.Score >= ScanHighThreshold:
		a.Priority = "high"
	case a.Score >= ScanMediumThreshold:
		a.Priority = "medium"
	default:
		a.Priority = "low"
	}
	return a
}

// SortByScore orders analyses by descending score, then hostname.
func SortByScore(as []HostAnalysis) {
	sort.SliceStable(as, func(i, j int) bool {
		if as[i].Score != as[j].Score {
			return as[i].Score > as[j].Score
		}
		return as[i].Hostname < as[j].Hostname
	})
}

// AnalyzeTriageTool takes parse_nmap output {"hosts"} and returns the
// prioritised result.
func AnalyzeTriageTool() tool.Tool {
	return tool.MustNew(tool.NewConfig().
		SetName("analyze_triage").
		SetDescription("Prioritize reconnaissance targets based on risk indicators").
		SetInvokeFunc(func(_ context.Context, in map[string]any) (map[string]any, error) {
			var hosts []Host
			if raw, ok := in["hosts"]; ok && raw != nil {
				if err := decodeInput("analyze_triage", raw, &hosts); err != nil {
					return nil, err
				}
			}
			out, _ := toJSON(AnalyzeHosts(hosts)).(map[string]any)
			return out, nil
		}))
}
