// Package store handles SQLite persistence of fix runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/dt5202fix/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			input_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			input_bytes INTEGER NOT NULL,
			input_lines INTEGER NOT NULL,
			header_closed INTEGER NOT NULL,
			frames INTEGER NOT NULL,
			intact_frames INTEGER NOT NULL,
			valid_frames INTEGER NOT NULL,
			zero_channel_frames INTEGER NOT NULL,
			abnormal_frames INTEGER NOT NULL,
			channel_readings INTEGER NOT NULL,
			trgid_diff_outliers INTEGER NOT NULL,
			trgid_iqr_outliers INTEGER NOT NULL,
			ts_diff_outliers INTEGER NOT NULL,
			ts_iqr_outliers INTEGER NOT NULL,
			lines_written INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rejected_frames (
			run_id TEXT NOT NULL,
			frame INTEGER NOT NULL,
			board INTEGER NOT NULL,
			trg_id INTEGER NOT NULL,
			ts REAL,
			channels INTEGER NOT NULL,
			abnormal INTEGER NOT NULL,
			intact INTEGER NOT NULL,
			reasons INTEGER NOT NULL,
			cause INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, frame)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_input_path ON runs(input_path);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	if err := s.relaxTimestampColumn(); err != nil {
		return err
	}
	return s.addCauseColumn()
}

// addCauseColumn adds rejected_frames.cause to older databases. Rows written before it
// existed keep cause 0.
func (s *Store) addCauseColumn() error {
	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('rejected_frames') WHERE name = 'cause'`)
	if err := row.Scan(&n); err != nil {
		return fmt.Errorf("failed to inspect rejected_frames: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.Exec(`ALTER TABLE rejected_frames ADD COLUMN cause INTEGER NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("failed to migrate rejected_frames: %w", err)
	}
	return nil
}

// relaxTimestampColumn rebuilds rejected_frames from databases created while ts was
// NOT NULL. NaN timestamps are stored as NULL.
func (s *Store) relaxTimestampColumn() (err error) {
	var notNull int
	row := s.db.QueryRow(`SELECT "notnull" FROM pragma_table_info('rejected_frames') WHERE name = 'ts'`)
	if err := row.Scan(&notNull); err != nil {
		return fmt.Errorf("failed to inspect rejected_frames: %w", err)
	}
	if notNull == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmts := []string{
		`ALTER TABLE rejected_frames RENAME TO rejected_frames_old;`,
		`CREATE TABLE rejected_frames (
			run_id TEXT NOT NULL,
			frame INTEGER NOT NULL,
			board INTEGER NOT NULL,
			trg_id INTEGER NOT NULL,
			ts REAL,
			channels INTEGER NOT NULL,
			abnormal INTEGER NOT NULL,
			intact INTEGER NOT NULL,
			reasons INTEGER NOT NULL,
			cause INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, frame)
		);`,
		`INSERT INTO rejected_frames (run_id, frame, board, trg_id, ts, channels, abnormal, intact, reasons)
		 SELECT run_id, frame, board, trg_id, ts, channels, abnormal, intact, reasons FROM rejected_frames_old;`,
		`DROP TABLE rejected_frames_old;`,
	}
	for _, stmt := range stmts {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to migrate rejected_frames: %w", err)
		}
	}
	err = tx.Commit()
	return err
}

// InsertRun stores a completed run and the frames it rejected.
func (s *Store) InsertRun(ctx context.Context, run model.RunSummary, rejects []model.RejectedFrame) (err error) {
	if run.RunID == "" {
		return fmt.Errorf("run id must not be empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, ended_at, input_path, output_path, input_bytes, input_lines, header_closed,
			frames, intact_frames, valid_frames, zero_channel_frames, abnormal_frames, channel_readings,
			trgid_diff_outliers, trgid_iqr_outliers, ts_diff_outliers, ts_iqr_outliers, lines_written, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.StartedAt.Format(time.RFC3339Nano),
		run.EndedAt.Format(time.RFC3339Nano),
		run.InputPath,
		run.OutputPath,
		run.InputBytes,
		run.InputLines,
		boolInt(run.HeaderClosed),
		run.Frames,
		run.IntactFrames,
		run.ValidFrames,
		run.ZeroChannelFrames,
		run.AbnormalFrames,
		run.ChannelReadings,
		run.TrgIDDiffOutliers,
		run.TrgIDIQROutliers,
		run.TSDiffOutliers,
		run.TSIQROutliers,
		run.LinesWritten,
		run.DurationMs,
	)
	if err != nil {
		return err
	}

	if len(rejects) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO rejected_frames (run_id, frame, board, trg_id, ts, channels, abnormal, intact, reasons, cause)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, rf := range rejects {
			if _, err = stmt.ExecContext(ctx, run.RunID, rf.Frame, rf.Board, rf.TrgID, nullableFloat(rf.Timestamp),
				rf.Channels, rf.Abnormal, boolInt(rf.Intact), int(rf.Reasons), int(rf.Cause)); err != nil {
				return err
			}
		}
	}

	err = tx.Commit()
	return err
}

// ListRuns returns runs filtered by cfg, oldest first.
func (s *Store) ListRuns(ctx context.Context, cfg model.HistoryConfig) ([]model.RunSummary, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Input != "" {
		clauses = append(clauses, "input_path = ?")
		args = append(args, cfg.Input)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT id, started_at, ended_at, input_path, output_path, input_bytes, input_lines, header_closed,
			frames, intact_frames, valid_frames, zero_channel_frames, abnormal_frames, channel_readings,
			trgid_diff_outliers, trgid_iqr_outliers, ts_diff_outliers, ts_iqr_outliers, lines_written, duration_ms
		FROM runs
		WHERE %s
		ORDER BY ended_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunSummary
	for rows.Next() {
		var run model.RunSummary
		var startedAt, endedAt string
		var headerClosed int
		if err := rows.Scan(&run.RunID, &startedAt, &endedAt, &run.InputPath, &run.OutputPath, &run.InputBytes,
			&run.InputLines, &headerClosed, &run.Frames, &run.IntactFrames, &run.ValidFrames, &run.ZeroChannelFrames,
			&run.AbnormalFrames, &run.ChannelReadings, &run.TrgIDDiffOutliers, &run.TrgIDIQROutliers,
			&run.TSDiffOutliers, &run.TSIQROutliers, &run.LinesWritten, &run.DurationMs); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if run.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, err
		}
		run.HeaderClosed = headerClosed != 0
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(runs) > cfg.Last {
		runs = runs[len(runs)-cfg.Last:]
	}
	return runs, nil
}

// ListRejects returns the frames rejected by a run, in frame order.
func (s *Store) ListRejects(ctx context.Context, runID string) ([]model.RejectedFrame, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, board, trg_id, ts, channels, abnormal, intact, reasons, cause
		FROM rejected_frames
		WHERE run_id = ?
		ORDER BY frame ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.RejectedFrame
	for rows.Next() {
		rf := model.RejectedFrame{RunID: runID}
		var intact, reasons, cause int
		var ts sql.NullFloat64
		if err := rows.Scan(&rf.Frame, &rf.Board, &rf.TrgID, &ts, &rf.Channels, &rf.Abnormal, &intact, &reasons, &cause); err != nil {
			return nil, err
		}
		rf.Timestamp = math.NaN()
		if ts.Valid {
			rf.Timestamp = ts.Float64
		}
		rf.Intact = intact != 0
		rf.Reasons = uint8(reasons)
		rf.Cause = uint8(cause)
		result = append(result, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// FindRun resolves a full run id from a unique prefix.
func (s *Store) FindRun(ctx context.Context, prefix string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs WHERE id LIKE ? ORDER BY id LIMIT 2`, prefix+"%")
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no run matches %q", prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run id prefix %q is ambiguous", prefix)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableFloat maps NaN to NULL.
func nullableFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}
