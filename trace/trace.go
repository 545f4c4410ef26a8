// Package trace summarises run logs written by the pipeline.
package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zero-day-ai/reconpipe/artifact"
)

// StageEntry is one artifact in a run, in log order.
type StageEntry struct {
	Name      string    `json:"name"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Summary describes one run.
type Summary struct {
	RunID       string       `json:"run_id"`
	Stages      []StageEntry `json:"stages"`
	TotalStages int          `json:"total_stages"`
	Successful  int          `json:"successful"`
	Failed      int          `json:"failed"`
	Start       *time.Time   `json:"start_time"`
	End         *time.Time   `json:"end_time"`

	// DurationSeconds spans the first to the last artifact timestamp.
	DurationSeconds *float64 `json:"duration_seconds"`

	// State is the final state from the run_finished event, if the run got
	// that far.
	State string `json:"state,omitempty"`

	// Blocked lists "stage: reason" for every gate_blocked event.
	Blocked []string `json:"blocked,omitempty"`
}

// Summarize reads runDir/<runID>.jsonl.
func Summarize(runDir, runID string) (*Summary, error) {
	path := artifact.Path(runDir, runID)
	records, err := artifact.ReadRecords(path)
	if err != nil {
		return nil, err
	}
	arts, err := artifact.ReadArtifacts(path)
	if err != nil {
		return nil, err
	}

	s := &Summary{RunID: runID, Stages: []StageEntry{}}
	for _, a := range arts {
		s.Stages = append(s.Stages, StageEntry{
			Name:      a.Stage,
			Success:   a.Success,
			Timestamp: a.Timestamp,
			Error:     a.Error,
		})
		if a.Success {
			s.Successful++
		} else {
			s.Failed++
		}
		if ts := a.Timestamp; !ts.IsZero() {
			if s.Start == nil || ts.Before(*s.Start) {
				s.Start = &ts
			}
			if s.End == nil || ts.After(*s.End) {
				s.End = &ts
			}
		}
	}
	s.TotalStages = len(s.Stages)
	if s.Start != nil && s.End != nil {
		d := s.End.Sub(*s.Start).Seconds()
		s.DurationSeconds = &d
	}

	for _, rec := range records {
		switch rec["event"] {
		case "run_finished":
			if st, ok := rec["state"].(string); ok {
				s.State = st
			}
		case "gate_blocked":
			s.Blocked = append(s.Blocked, fmt.Sprintf("%v: %v", rec["stage"], rec["reason"]))
		}
	}
	return s, nil
}

// List returns the run ids with a log under runDir, oldest first. A missing
// directory has no runs.
func List(runDir string) ([]string, error) {
	entries, err := os.ReadDir(runDir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs in %s: %w", runDir, err)
	}

	type run struct {
		id  string
		mod time.Time
	}
	var runs []run
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, run{id: strings.TrimSuffix(e.Name(), ".jsonl"), mod: info.ModTime()})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].mod.Equal(runs[j].mod) {
			return runs[i].id < runs[j].id
		}
		return runs[i].mod.Before(runs[j].mod)
	})

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.id
	}
	return ids, nil
}

// Format writes a table of the run's stages to w.
func Format(w io.Writer, s *Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TIMESTAMP\tSTAGE\tSTATUS\n")
	for _, st := range s.Stages {
		status := "SUCCESS"
		if !st.Success {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Timestamp.UTC().Format("2006-01-02 15:04:05"), st.Name, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d stages, %d successful, %d failed", s.TotalStages, s.Successful, s.Failed)
	if s.DurationSeconds != nil {
		fmt.Fprintf(w, ", %.3fs", *s.DurationSeconds)
	}
	if s.State != "" {
		fmt.Fprintf(w, ", state %s", s.State)
	}
	_, err := fmt.Fprintln(w)
	for _, b := range s.Blocked {
		fmt.Fprintf(w, "blocked: %s\n", b)
	}
	return err
}
