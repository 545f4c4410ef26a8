package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zero-day-ai/reconpipe/artifact"
)

// NormalizedSchemaVersion is stamped on normalize output.
const NormalizedSchemaVersion = "1.0.0"

// Signal names derived during normalization.
const (
	SignalAdminPanel     = "admin_panel"
	SignalNonProduction  = "non_production"
	SignalDebugEnabled   = "debug_enabled"
	SignalTechDisclosure = "tech_disclosure"
	SignalSensitivePort  = "sensitive_port"
	SignalDevPort        = "dev_port"
)

var (
	sensitivePorts = map[int]bool{22: true, 3306: true, 5432: true, 27017: true, 6379: true}
	devPorts       = map[int]bool{3000: true, 4000: true, 5000: true, 8000: true, 8080: true, 9000: true}
)

// Signals derives indicator flags from a raw or normalized record. Header
// names are matched case-insensitively.
func Signals(rec map[string]any) []string {
	signals := []string{}
	host := strings.ToLower(asString(rec["host"]))
	if strings.Contains(host, "admin") {
		signals = append(signals, SignalAdminPanel)
	}
	if strings.Contains(host, "staging") || strings.Contains(host, "dev") {
		signals = append(signals, SignalNonProduction)
	}

	headers := lowerHeaders(asMap(rec["headers"]))
	if strings.EqualFold(asString(headers["x-debug-mode"]), "enabled") {
		signals = append(signals, SignalDebugEnabled)
	}
	if _, ok := headers["x-powered-by"]; ok {
		signals = append(signals, SignalTechDisclosure)
	}

	var sensitive, dev bool
	for _, p := range asInts(rec["ports"]) {
		sensitive = sensitive || sensitivePorts[p]
		dev = dev || devPorts[p]
	}
	if sensitive {
		signals = append(signals, SignalSensitivePort)
	}
	if dev {
		signals = append(signals, SignalDevPort)
	}
	return signals
}

func lowerHeaders(h map[string]any) map[string]any {
	out := make(map[string]any, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = asString(v)
	}
	return out
}

// Normalize maps raw findings into one fixed record shape and derives
// signals. Records without a host are skipped with a logged reason; the run
// continues and included plus skipped always equals the input count.
type Normalize struct {
	base
}

// NewNormalize returns the normalize stage.
func NewNormalize(opts ...Option) *Normalize {
	return &Normalize{base: newBase(opts)}
}

// Name implements Stage.
func (n *Normalize) Name() string { return "normalize" }

// Run implements Stage. It reads the "findings" list of the previous output.
func (n *Normalize) Run(_ context.Context, prev *artifact.Artifact) (*artifact.Artifact, error) {
	raw := asSlice(input(prev)["findings"])
	ts := n.now().UTC().Format(time.RFC3339)

	normalized := make([]any, 0, len(raw))
	reasons := []any{}
	for i, item := range raw {
		rec, reason := n.normalizeRecord(item, ts)
		if rec == nil {
			reason = fmt.Sprintf("record %d: %s", i, reason)
			n.logger.Warn("skipping record", zap.Int("index", i), zap.String("reason", reason))
			reasons = append(reasons, reason)
			continue
		}
		normalized = append(normalized, rec)
	}

	return artifact.Next(prev, n.Name(), map[string]any{
		"normalized":      normalized,
		"total_records":   len(raw),
		"included":        len(normalized),
		"skipped":         len(reasons),
		"skipped_reasons": reasons,
		"schema_version":  NormalizedSchemaVersion,
	}), nil
}

func (n *Normalize) normalizeRecord(item any, ts string) (map[string]any, string) {
	rec := asMap(item)
	if rec == nil {
		return nil, "not an object"
	}
	host, ok := rec["host"].(string)
	if !ok || strings.TrimSpace(host) == "" {
		return nil, "missing host"
	}

	path := asString(rec["path"])
	if path == "" {
		path = "/"
	}
	status, _ := asInt(rec["status"])
	ip := asString(rec["ip"])
	if ip == "" {
		ip = "unknown"
	}
	headers := lowerHeaders(asMap(rec["headers"]))

	out := map[string]any{
		"host":    strings.ToLower(strings.TrimSpace(host)),
		"path":    path,
		"status":  status,
		"title":   asString(rec["title"]),
		"ip":      ip,
		"ports":   intsToAny(asInts(rec["ports"])),
		"headers": headers,
		"ts":      ts,
	}
	out["signals"] = stringsToAny(Signals(out))
	return out, ""
}
