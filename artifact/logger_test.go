package artifact

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) [][]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
}

func TestNewLogger_CreatesDirAndUniqueFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs", "nested")

	a, err := NewLogger(dir)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewLogger(dir)
	require.NoError(t, err)
	defer b.Close()

	assert.NotEqual(t, a.RunID(), b.RunID())
	assert.NotEqual(t, a.Path(), b.Path())
	assert.Equal(t, filepath.Join(dir, a.RunID()+".jsonl"), a.Path())
	assert.FileExists(t, a.Path())
}

func TestNewLogger_UnwritableDirFails(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := NewLogger(filepath.Join(file, "runs"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create run directory")
}

func TestOpenLogger_RejectsBadRunID(t *testing.T) {
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		_, err := OpenLogger(t.TempDir(), id)
		assert.Error(t, err, id)
	}
}

// Two writes, reopened between them, produce two lines in order.
func TestLogger_AppendsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	l, err := NewLogger(dir)
	require.NoError(t, err)
	require.NoError(t, l.Write(map[string]any{"a": 1}))
	require.NoError(t, l.Close())

	l2, err := OpenLogger(dir, l.RunID())
	require.NoError(t, err)
	require.NoError(t, l2.Write(map[string]any{"b": 2}))
	require.NoError(t, l2.Close())

	lines := readLines(t, l.Path())
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, map[string]any{"a": float64(1)}, first)
	assert.Equal(t, map[string]any{"b": float64(2)}, second)
}

func TestLogger_RoundTripIsByteStable(t *testing.T) {
	l, err := NewLogger(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	a := New(l.RunID(), "triage", map[string]any{"hosts": []string{"a.example.com"}}, map[string]any{
		"count":   3,
		"ratio":   0.25,
		"big":     int64(9007199254740993),
		"summary": map[string]any{"high": 1, "notes": "<b>&</b>"},
		"empty":   nil,
	})
	require.NoError(t, l.WriteArtifact(a))

	got, err := ReadArtifacts(l.Path())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, l.WriteArtifact(got[0]))

	lines := readLines(t, l.Path())
	require.Len(t, lines, 2)
	assert.Equal(t, string(lines[0]), string(lines[1]))
}

func TestLogger_WriteArtifactRejectsInvalid(t *testing.T) {
	l, err := NewLogger(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	bad := New(l.RunID(), "s", nil, map[string]any{"raw": []byte{1}})
	assert.ErrorIs(t, l.WriteArtifact(bad), ErrNotJSON)
	assert.Error(t, l.WriteArtifact(nil))

	info, err := os.Stat(l.Path())
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "rejected artifacts must not reach the log")
}

func TestLogger_WriteAfterClose(t *testing.T) {
	l, err := NewLogger(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Write(map[string]any{"x": 1}), ErrClosed)
}

func TestLogger_ConcurrentWritesStayLineAligned(t *testing.T) {
	l, err := NewLogger(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Write(map[string]any{"i": i, "pad": strings.Repeat("x", 512)}))
		}(i)
	}
	wg.Wait()

	records, err := ReadRecords(l.Path())
	require.NoError(t, err)
	assert.Len(t, records, n)
}

func TestReadArtifacts_SkipsEvents(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)

	require.NoError(t, l.WriteArtifact(New(l.RunID(), "recon", nil, nil)))
	require.NoError(t, l.Write(map[string]any{"event": "gate_blocked", "stage": "triage"}))
	require.NoError(t, l.WriteArtifact(New(l.RunID(), "normalize", nil, nil)))
	require.NoError(t, l.Close())

	arts, err := Load(dir, l.RunID())
	require.NoError(t, err)

	var stages []string
	for _, a := range arts {
		stages = append(stages, a.Stage)
	}
	if diff := cmp.Diff([]string{"recon", "normalize"}, stages); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}

	records, err := ReadRecords(l.Path())
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, "gate_blocked", records[1]["event"])
}

func TestReadRecords_MissingFile(t *testing.T) {
	_, err := ReadRecords(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}
