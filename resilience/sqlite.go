package resilience

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zero-day-ai/reconpipe/artifact"
)

// SQLiteStore keeps checkpoints in a local SQLite database, one row per
// (run, stage).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	run_id      TEXT    NOT NULL,
	stage       TEXT    NOT NULL,
	stage_index INTEGER NOT NULL,
	artifact    TEXT,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (run_id, stage)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints (run_id, updated_at);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate checkpoint schema: %w", err)
	}
	return nil
}

// Save upserts the row for (run, stage).
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	var art sql.NullString
	if cp.Artifact != nil {
		data, err := json.Marshal(cp.Artifact)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint artifact: %w", err)
		}
		art = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO checkpoints (run_id, stage, stage_index, artifact, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (run_id, stage) DO UPDATE SET
	stage_index = excluded.stage_index,
	artifact    = excluded.artifact,
	updated_at  = excluded.updated_at`,
		cp.RunID, cp.Stage, cp.Index, art, cp.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load returns the most recently saved checkpoint of runID.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT run_id, stage, stage_index, artifact, updated_at FROM checkpoints
WHERE run_id = ? ORDER BY updated_at DESC, stage_index DESC LIMIT 1`, runID)
	return scanCheckpoint(row)
}

// LoadStage returns the checkpoint of one stage.
func (s *SQLiteStore) LoadStage(ctx context.Context, runID, stage string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT run_id, stage, stage_index, artifact, updated_at FROM checkpoints
WHERE run_id = ? AND stage = ?`, runID, stage)
	return scanCheckpoint(row)
}

// Delete removes every row of runID.
func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	var (
		cp      Checkpoint
		art     sql.NullString
		updated int64
	)
	err := row.Scan(&cp.RunID, &cp.Stage, &cp.Index, &art, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	cp.UpdatedAt = time.Unix(0, updated).UTC()
	if art.Valid {
		var a artifact.Artifact
		if err := artifact.Decode([]byte(art.String), &a); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint artifact: %w", err)
		}
		cp.Artifact = &a
	}
	return &cp, nil
}
