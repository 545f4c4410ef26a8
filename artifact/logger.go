package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by writes on a closed Logger.
var ErrClosed = errors.New("artifact: logger closed")

// Logger appends records to a run-scoped JSON Lines file.
//
// Each record is one line. The file is synced after every write, trading
// throughput for an audit trail that survives a crash mid-run. Writes are
// serialized, so a Logger may be shared between goroutines.
type Logger struct {
	runID string
	path  string

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// NewLogger creates runDir if needed and opens a new log named after a fresh
// run id. It fails when the directory or file cannot be created; there is no
// fallback destination.
//
// Example:
//
//	logger, err := artifact.NewLogger("runs")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
func NewLogger(runDir string) (*Logger, error) {
	return OpenLogger(runDir, uuid.NewString())
}

// OpenLogger opens the log for an existing run id in append mode, creating it
// when absent. Reopening a run never truncates earlier records.
func OpenLogger(runDir, runID string) (*Logger, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", runDir, err)
	}

	path := Path(runDir, runID)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	return &Logger{
		runID: runID,
		path:  path,
		file:  file,
	}, nil
}

// Path returns the log file path for runID under runDir.
func Path(runDir, runID string) string {
	return filepath.Join(runDir, runID+".jsonl")
}

// RunID returns the run id this logger writes for.
func (l *Logger) RunID() string { return l.runID }

// Path returns the log file path.
func (l *Logger) Path() string { return l.path }

// Write appends record as one JSON line and syncs the file. The record must
// already be JSON-compatible; no conversion is attempted.
func (l *Logger) Write(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	return nil
}

// WriteArtifact validates a and appends it.
func (l *Logger) WriteArtifact(a *Artifact) error {
	if a == nil {
		return errors.New("artifact: nil artifact")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	return l.Write(a)
}

// Close syncs and closes the file. Calling Close more than once is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	syncErr := l.file.Sync()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	if syncErr != nil {
		return fmt.Errorf("failed to sync log file: %w", syncErr)
	}
	return nil
}
