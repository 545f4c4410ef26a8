package recon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zero-day-ai/reconpipe/artifact"
	"github.com/zero-day-ai/reconpipe/scope"
)

// Writer receives records. *artifact.Logger satisfies it.
type Writer interface {
	Write(record any) error
}

// PipelineConfig selects the optional probes and the scope.
type PipelineConfig struct {
	// Scope, when set, filters hosts before any network call.
	Scope *scope.Checker

	IncludeTLS     bool
	IncludeContent bool

	// DryRun scans and counts but writes nothing.
	DryRun bool

	Logger *zap.Logger
}

// Result summarises one pipeline run.
type Result struct {
	Root          string           `json:"root"`
	Records       []Record         `json:"records"`
	Blocked       []scope.Decision `json:"blocked,omitempty"`
	HostsScanned  int              `json:"hosts_scanned"`
	HostsResolved int              `json:"hosts_resolved"`
	HostsWithWAF  int              `json:"hosts_with_waf"`
	Errors        []string         `json:"errors,omitempty"`
}

// Pipeline plans candidate hosts for a root domain, probes each in-scope host
// and records the result.
type Pipeline struct {
	prober *Prober
	out    Writer
	cfg    PipelineConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewPipeline returns a pipeline writing to out. out may be nil for dry runs.
func NewPipeline(p *Prober, out Writer, cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		prober: p,
		out:    out,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run scans root and its candidate subdomains in order. Out-of-scope hosts are
// never probed; their decision is written as a scope-v1 record. A write
// failure stops the run. Cancelling ctx returns the partial result with
// ctx.Err().
func (pl *Pipeline) Run(ctx context.Context, root string) (*Result, error) {
	hosts := Candidates(root)
	if len(hosts) == 0 {
		return nil, errors.New("recon: root domain is required")
	}
	if pl.out == nil && !pl.cfg.DryRun {
		return nil, errors.New("recon: output writer is required unless dry run")
	}

	res := &Result{Root: strings.ToLower(strings.TrimSpace(root)), Records: []Record{}}
	pl.logger.Info("recon planned", zap.String("root", res.Root), zap.Int("hosts", len(hosts)))

	for _, host := range hosts {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if pl.cfg.Scope != nil {
			d := pl.cfg.Scope.Check(host)
			if !d.Allowed {
				res.Blocked = append(res.Blocked, d)
				pl.logger.Info("host out of scope", zap.String("host", host), zap.String("reason", d.Reason))
				if err := pl.write(d.Record(pl.now())); err != nil {
					return res, err
				}
				continue
			}
		}

		rec := pl.ScanHost(ctx, host)
		res.Records = append(res.Records, rec)
		res.HostsScanned++
		if rec.Resolved() {
			res.HostsResolved++
		}
		if rec.WAF() {
			res.HostsWithWAF++
		}
		for _, e := range rec.Errors() {
			res.Errors = append(res.Errors, host+": "+e)
		}
		if err := pl.write(rec); err != nil {
			return res, err
		}
		pl.logger.Debug("host scanned",
			zap.String("host", host),
			zap.Int("status", rec.Status()),
			zap.Bool("waf", rec.WAF()))
	}

	pl.logger.Info("recon finished",
		zap.Int("scanned", res.HostsScanned),
		zap.Int("resolved", res.HostsResolved),
		zap.Int("with_waf", res.HostsWithWAF),
		zap.Int("blocked", len(res.Blocked)))
	return res, nil
}

func (pl *Pipeline) write(record any) error {
	if pl.cfg.DryRun {
		return nil
	}
	if err := pl.out.Write(record); err != nil {
		return fmt.Errorf("recon: write record: %w", err)
	}
	return nil
}

// ScanHost runs every enabled probe against one host. It does not consult
// the scope.
func (pl *Pipeline) ScanHost(ctx context.Context, host string) Record {
	ips, cname := pl.prober.Resolve(ctx, host)
	raw, notes := pl.prober.Head(ctx, host)
	headers := SanitizeHeaders(raw)

	rec := Record{
		Schema:  SchemaRecord,
		Host:    host,
		A:       ips,
		CNAME:   cname,
		Headers: headers,
		Notes:   notes,
	}
	if len(headers) > 0 {
		provider, sigs := ClassifyWAF(headers)
		hint := len(sigs) > 0
		rec.WAFHint = &hint
		rec.WAFProvider = provider
	}
	if pl.cfg.IncludeTLS {
		info := pl.prober.TLSPeek(ctx, host)
		rec.TLS = &info
	}
	if pl.cfg.IncludeContent {
		rec.Notes = append(rec.Notes, pl.prober.Robots(ctx, host)...)
	}
	rec.TS = pl.now().Format(time.RFC3339)
	return rec
}

// OpenOutput opens path as an append-only JSONL file, for example
// runs/recon.jsonl. The ".jsonl" extension is implied.
func OpenOutput(path string) (*artifact.Logger, error) {
	dir, file := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	return artifact.OpenLogger(dir, strings.TrimSuffix(file, ".jsonl"))
}

// Stage runs the pipeline for one root domain as a pipeline stage. Its
// output has the "findings" list the normalize stage reads.
type Stage struct {
	pipeline *Pipeline
	root     string
}

// NewStage returns the "recon" stage for root.
func NewStage(p *Pipeline, root string) *Stage {
	return &Stage{pipeline: p, root: root}
}

// Name implements stage.Stage.
func (s *Stage) Name() string { return "recon" }

// Targets returns every candidate host, so gates see the full blast radius.
func (s *Stage) Targets(*artifact.Artifact) []string { return Candidates(s.root) }

// Run implements stage.Stage.
func (s *Stage) Run(ctx context.Context, prev *artifact.Artifact) (*artifact.Artifact, error) {
	res, err := s.pipeline.Run(ctx, s.root)
	if err != nil {
		return nil, err
	}

	targets := make([]any, 0, len(res.Records))
	findings := make([]any, 0, len(res.Records))
	for _, r := range res.Records {
		targets = append(targets, r.Host)
		findings = append(findings, r.Finding())
	}
	blocked := make([]any, 0, len(res.Blocked))
	for _, d := range res.Blocked {
		blocked = append(blocked, map[string]any{"host": d.Host, "reason": d.Reason})
	}

	return artifact.Next(prev, s.Name(), map[string]any{
		"root":           res.Root,
		"targets":        targets,
		"findings":       findings,
		"total_hosts":    res.HostsScanned,
		"hosts_resolved": res.HostsResolved,
		"hosts_with_waf": res.HostsWithWAF,
		"blocked":        blocked,
	}), nil
}
