package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zero-day-ai/reconpipe/config"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Run.Dir = filepath.Join(dir, "runs")
	cfg.Checkpoint.Dir = filepath.Join(dir, "checkpoints")
	cfg.Recon.Output = filepath.Join(dir, "recon.jsonl")

	var out bytes.Buffer
	return &app{
		logger: zap.NewNop(),
		cfg:    &cfg,
		stdin:  strings.NewReader(""),
		stdout: &out,
	}, &out
}

func execute(a *app, args ...string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	return root.Execute()
}

func TestRun_Synthetic(t *testing.T) {
	a, out := newTestApp(t)
	reports := t.TempDir()

	require.NoError(t, execute(a, "run", "--report-dir", reports, "example.com"))
	assert.Contains(t, out.String(), "state completed")
	assert.Contains(t, out.String(), "report: "+reports)

	files, err := os.ReadDir(reports)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	out.Reset()
	require.NoError(t, execute(a, "trace"))
	ids := strings.Fields(out.String())
	require.Len(t, ids, 1)

	out.Reset()
	require.NoError(t, execute(a, "trace", ids[0]))
	assert.Contains(t, out.String(), "triage")
	assert.Contains(t, out.String(), "state completed")
}

func TestRun_GateBlocked(t *testing.T) {
	a, out := newTestApp(t)

	err := execute(a, "run", "payment.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked by safety gate")
	assert.Contains(t, out.String(), "state gate_blocked")
}

func TestRun_LiveNeedsOneRoot(t *testing.T) {
	a, _ := newTestApp(t)
	err := execute(a, "run", "--live", "a.example.com", "b.example.com")
	assert.EqualError(t, err, "live recon needs exactly one root domain, got 2")
}

func TestTrace_Empty(t *testing.T) {
	a, out := newTestApp(t)
	require.NoError(t, execute(a, "trace"))
	assert.Contains(t, out.String(), "no runs in")
}

func TestScopeCheck(t *testing.T) {
	a, out := newTestApp(t)
	file := filepath.Join(t.TempDir(), "scope.yaml")
	require.NoError(t, os.WriteFile(file, []byte("allowed:\n  - \"*.example.com\"\nforbidden:\n  - \"admin.example.com\"\n"), 0o600))

	err := execute(a, "scope", "check", "--file", file, "api.example.com", "admin.example.com")
	assert.EqualError(t, err, "1 of 2 hosts out of scope")
	assert.Regexp(t, `api\.example\.com\s+allowed`, out.String())
	assert.Regexp(t, `admin\.example\.com\s+blocked`, out.String())
}

func TestScopeCheck_NoFile(t *testing.T) {
	a, _ := newTestApp(t)
	err := execute(a, "scope", "check", "example.com")
	assert.ErrorContains(t, err, "no scope file")
}

func TestTools(t *testing.T) {
	a, out := newTestApp(t)
	require.NoError(t, execute(a, "tools"))
	for _, name := range []string{"ping", "extract_urls", "dns_resolve", "https_head", "tls_peek", "waf_detect"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestStop_RequiresEtcd(t *testing.T) {
	a, _ := newTestApp(t)
	err := execute(a, "stop")
	assert.ErrorContains(t, err, "no etcd endpoints")
}
