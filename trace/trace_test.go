package trace

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/reconpipe/artifact"
)

func writeRun(t *testing.T, dir string) string {
	t.Helper()
	l, err := artifact.NewLogger(dir)
	require.NoError(t, err)
	defer l.Close()

	start := time.Date(2025, 3, 1, 10, 3, 0, 0, time.UTC)
	recon := artifact.New(l.RunID(), "recon", nil, map[string]any{"n": 1})
	recon.Timestamp = start
	triage := artifact.Failed(recon, "triage", errors.New("boom"))
	triage.Timestamp = start.Add(90 * time.Second)

	require.NoError(t, l.Write(map[string]any{"event": "run_started", "run_id": l.RunID()}))
	require.NoError(t, l.WriteArtifact(recon))
	require.NoError(t, l.WriteArtifact(triage))
	require.NoError(t, l.Write(map[string]any{"event": "gate_blocked", "stage": "report", "reason": "outside window"}))
	require.NoError(t, l.Write(map[string]any{"event": "run_finished", "state": "failed"}))
	return l.RunID()
}

func TestSummarize(t *testing.T) {
	dir := t.TempDir()
	id := writeRun(t, dir)

	s, err := Summarize(dir, id)
	require.NoError(t, err)
	assert.Equal(t, id, s.RunID)
	assert.Equal(t, 2, s.TotalStages)
	assert.Equal(t, 1, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, "boom", s.Stages[1].Error)
	require.NotNil(t, s.DurationSeconds)
	assert.InDelta(t, 90, *s.DurationSeconds, 0.001)
	assert.Equal(t, "failed", s.State)
	assert.Equal(t, []string{"report: outside window"}, s.Blocked)

	var buf bytes.Buffer
	require.NoError(t, Format(&buf, s))
	assert.Contains(t, buf.String(), "2025-03-01 10:03:00")
	assert.Contains(t, buf.String(), "FAILED")
	assert.Contains(t, buf.String(), "2 stages, 1 successful, 1 failed, 90.000s, state failed")
}

func TestSummarize_MissingRun(t *testing.T) {
	_, err := Summarize(t.TempDir(), "nope")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	ids, err := List(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, ids)

	first := writeRun(t, dir)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(artifact.Path(dir, first), old, old))
	second := writeRun(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	ids, err = List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, ids)
}
