package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zero-day-ai/reconpipe/artifact"
)

// ErrNoCheckpoint is returned when a run or stage has no checkpoint.
var ErrNoCheckpoint = errors.New("resilience: no checkpoint")

// Checkpoint marks the last successfully completed stage of a run. It is
// advisory: restoring from it never undoes artifacts already logged.
type Checkpoint struct {
	RunID string `json:"run_id"`
	// Index is the 0-based position of Stage in the pipeline.
	Index    int                `json:"index"`
	Stage    string             `json:"stage"`
	Artifact *artifact.Artifact `json:"artifact,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the checkpoint identifies a run and a stage.
func (c Checkpoint) Validate() error {
	if c.RunID == "" {
		return errors.New("checkpoint: run id is required")
	}
	if c.Stage == "" {
		return errors.New("checkpoint: stage is required")
	}
	if c.Index < 0 {
		return fmt.Errorf("checkpoint: invalid index %d", c.Index)
	}
	if strings.ContainsAny(c.RunID+c.Stage, `/\`) {
		return errors.New("checkpoint: run id and stage must not contain path separators")
	}
	return nil
}

// CheckpointStore persists checkpoints. Save records the checkpoint both as
// the run's latest and under its stage name.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	// Load returns the most recently saved checkpoint of runID.
	Load(ctx context.Context, runID string) (*Checkpoint, error)
	// LoadStage returns the checkpoint saved for one stage of runID.
	LoadStage(ctx context.Context, runID, stage string) (*Checkpoint, error)
	Delete(ctx context.Context, runID string) error
}

// SafeRun returns the checkpointed artifact of stage when one exists and
// otherwise runs fn and checkpoints its result. The boolean reports whether
// the result came from the store.
func SafeRun(ctx context.Context, store CheckpointStore, runID string, index int, stage string,
	fn func(context.Context) (*artifact.Artifact, error)) (*artifact.Artifact, bool, error) {
	cp, err := store.LoadStage(ctx, runID, stage)
	switch {
	case err == nil && cp.Artifact != nil:
		return cp.Artifact, true, nil
	case err != nil && !errors.Is(err, ErrNoCheckpoint):
		return nil, false, err
	}

	a, err := fn(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := store.Save(ctx, Checkpoint{RunID: runID, Index: index, Stage: stage, Artifact: a}); err != nil {
		return a, false, err
	}
	return a, false, nil
}

// FileStore keeps checkpoints as JSON files: <dir>/<run_id>/<stage>.json plus
// <dir>/<run_id>/latest.json.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created lazily.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

const latestName = "latest"

func (s *FileStore) path(runID, name string) string {
	return filepath.Join(s.dir, runID, name+".json")
}

// Save writes cp atomically (temp file and rename).
func (s *FileStore) Save(_ context.Context, cp Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	if cp.Stage == latestName {
		return fmt.Errorf("checkpoint: stage name %q is reserved", latestName)
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(s.dir, cp.RunID), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	for _, name := range []string{cp.Stage, latestName} {
		if err := writeAtomic(s.path(cp.RunID, name), data); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the latest checkpoint of runID.
func (s *FileStore) Load(_ context.Context, runID string) (*Checkpoint, error) {
	return s.read(runID, latestName)
}

// LoadStage returns the checkpoint of one stage.
func (s *FileStore) LoadStage(_ context.Context, runID, stage string) (*Checkpoint, error) {
	return s.read(runID, stage)
}

// Delete removes every checkpoint of runID.
func (s *FileStore) Delete(_ context.Context, runID string) error {
	if runID == "" || strings.ContainsAny(runID, `/\`) {
		return fmt.Errorf("invalid run id %q", runID)
	}
	if err := os.RemoveAll(filepath.Join(s.dir, runID)); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

func (s *FileStore) read(runID, name string) (*Checkpoint, error) {
	if strings.ContainsAny(runID+name, `/\`) {
		return nil, fmt.Errorf("invalid checkpoint key %s/%s", runID, name)
	}
	data, err := os.ReadFile(s.path(runID, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return decodeCheckpoint(data)
}

func decodeCheckpoint(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := artifact.Decode(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &cp, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}
