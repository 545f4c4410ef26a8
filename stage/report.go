package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zero-day-ai/reconpipe/artifact"
	"github.com/zero-day-ai/reconpipe/resilience"
)

// Report renders triage output as a markdown report and optionally saves it
// under a directory.
type Report struct {
	base
	outputDir      string
	includeDetails bool
}

// NewReport saves reports to outputDir when it is non-empty. Detailed
// per-host sections are included.
func NewReport(outputDir string, opts ...Option) *Report {
	return &Report{base: newBase(opts), outputDir: outputDir, includeDetails: true}
}

// Summary omits the per-host detail sections.
func (r *Report) Summary() *Report {
	r.includeDetails = false
	return r
}

// Name implements Stage.
func (r *Report) Name() string { return "report" }

// Run implements Stage.
func (r *Report) Run(_ context.Context, prev *artifact.Artifact) (*artifact.Artifact, error) {
	if prev == nil {
		return nil, resilience.Permanent(ErrNoInput)
	}
	now := r.now().UTC()
	content := r.Render(prev.RunID, input(prev), now)

	out := map[string]any{
		"report_content": content,
		"generated_at":   now.Format(time.RFC3339),
	}
	if r.outputDir != "" {
		path, err := r.save(content, prev.RunID, now)
		if err != nil {
			return nil, err
		}
		out["report_path"] = path
		r.logger.Info("report saved", zap.String("path", path))
	}
	return artifact.Next(prev, r.Name(), out), nil
}

// Render builds the markdown for triage output data.
func (r *Report) Render(runID string, data map[string]any, now time.Time) string {
	summary := asMap(data["summary"])
	high := asStrings(data["high_risk"])
	count := func(key string, fallback int) int {
		if n, ok := asInt(summary[key]); ok {
			return n
		}
		return fallback
	}
	highN := count("high", len(high))
	mediumN := count("medium", len(asSlice(data["medium_risk"])))
	lowN := count("low", len(asSlice(data["low_risk"])))
	total := count("total", highN+mediumN+lowN)

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# Security Reconnaissance Report")
	line("")
	line("**Generated:** %s UTC", now.Format("2006-01-02 15:04:05"))
	line("**Run ID:** `%s`", runID)
	line("")
	line("## Executive Summary")
	line("")
	line("| Risk Level | Count |")
	line("|------------|-------|")
	line("| High       | %d     |", highN)
	line("| Medium     | %d     |", mediumN)
	line("| Low        | %d     |", lowN)
	line("| **Total**  | **%d** |", total)
	line("")

	if len(high) > 0 {
		line("## High-Risk Findings")
		line("")
		line("The following targets require immediate attention:")
		line("")
		for _, h := range high {
			line("- `%s`", h)
		}
		line("")
	}

	if findings := asSlice(data["scored_findings"]); r.includeDetails && len(findings) > 0 {
		line("## Detailed Findings")
		line("")
		for _, item := range findings {
			f := asMap(item)
			if f == nil {
				continue
			}
			level := asString(f["risk_level"])
			if level == "" {
				level = "unknown"
			}
			score, _ := asInt(f["risk_score"])
			host := asString(f["host"])
			if host == "" {
				host = "unknown"
			}
			ip := asString(f["ip"])
			if ip == "" {
				ip = "unknown"
			}

			line("### [%s] %s", levelMarker(level), host)
			line("")
			line("- **Risk Level:** %s (score: %d)", strings.ToUpper(level), score)
			line("- **IP:** %s", ip)
			if ports := asInts(f["ports"]); len(ports) > 0 {
				ps := make([]string, len(ports))
				for i, p := range ports {
					ps[i] = fmt.Sprint(p)
				}
				line("- **Open Ports:** %s", strings.Join(ps, ", "))
			}
			if headers := asMap(f["headers"]); len(headers) > 0 {
				line("- **HTTP Headers:**")
				for _, k := range sortedKeys(headers) {
					line("  - `%s`: `%s`", k, asString(headers[k]))
				}
			}
			line("")
		}
	}

	line("## Recommendations")
	line("")
	if highN > 0 {
		line("1. **Immediately review** all high-risk findings")
		line("2. **Disable debug modes** on staging/development systems")
		line("3. **Restrict access** to administrative interfaces")
		line("4. **Update software** to remove version disclosure headers")
	} else {
		line("No high-risk findings detected. Continue monitoring.")
	}
	line("")
	line("---")
	b.WriteString("*Report generated by reconpipe*")
	return b.String()
}

func levelMarker(level string) string {
	switch level {
	case "high":
		return "!!"
	case "medium":
		return "!"
	case "low":
		return "o"
	default:
		return "?"
	}
}

func (r *Report) save(content, runID string, now time.Time) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("report_%s_%s.md", now.Format("20060102_150405"), short)
	path := filepath.Join(r.outputDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
