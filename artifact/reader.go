package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const maxLineSize = 16 << 20

// Decode parses one log line. Numbers are kept as json.Number so that
// re-encoding a decoded record reproduces the original line.
func Decode(line []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	return dec.Decode(v)
}

// Scan calls fn for every non-empty line of r, in order.
func Scan(r io.Reader, fn func(line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

// ReadRecords returns every record in the log at path as a generic map.
func ReadRecords(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	defer f.Close()

	var out []map[string]any
	err = Scan(f, func(line []byte) error {
		var rec map[string]any
		if err := Decode(line, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// ReadArtifacts returns the stage artifacts in the log at path, skipping
// event records such as gate blocks.
func ReadArtifacts(path string) ([]*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	defer f.Close()

	var out []*Artifact
	err = Scan(f, func(line []byte) error {
		var probe struct {
			Schema string `json:"schema"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return err
		}
		if probe.Schema != SchemaPipeline {
			return nil
		}
		var a Artifact
		if err := Decode(line, &a); err != nil {
			return err
		}
		out = append(out, &a)
		return nil
	})
	return out, err
}

// Load reads the artifacts of runID under runDir.
func Load(runDir, runID string) ([]*Artifact, error) {
	return ReadArtifacts(Path(runDir, runID))
}
