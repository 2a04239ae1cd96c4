package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/weftsched/weft/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    strategy_type   TEXT NOT NULL,
    strategy_bound  INTEGER NOT NULL,
    random_seed     INTEGER NOT NULL,
    status          TEXT NOT NULL,
    iteration_count INTEGER NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,
    finished_at     DATETIME
)`

const createIterationRecordsTable = `
CREATE TABLE IF NOT EXISTS iteration_records (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id          TEXT NOT NULL,
    iteration       INTEGER NOT NULL,
    outcome         TEXT NOT NULL,
    error_code      TEXT,
    scheduled_steps INTEGER NOT NULL,
    schedule_length INTEGER NOT NULL,
    token_sequence  TEXT NOT NULL,
    created_at      DATETIME NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(id)
)`

const createIterationRecordsRunIdx = `
CREATE INDEX IF NOT EXISTS idx_iteration_records_run_id ON iteration_records(run_id)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	if _, err := db.Exec(createIterationRecordsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create iteration_records table: %w", err)
	}
	if _, err := db.Exec(createIterationRecordsRunIdx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create iteration_records index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
			id, strategy_type, strategy_bound, random_seed, status,
			iteration_count, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StrategyType, r.StrategyBound, r.RandomSeed, r.Status,
		r.IterationCount, r.CreatedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r := &model.Run{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, strategy_type, strategy_bound, random_seed, status,
			iteration_count, created_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(
		&r.ID, &r.StrategyType, &r.StrategyBound, &r.RandomSeed, &r.Status,
		&r.IterationCount, &r.CreatedAt, &r.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC,
// along with the total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, strategy_type, strategy_bound, random_seed, status,
			iteration_count, created_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r := &model.Run{}
		if err := rows.Scan(
			&r.ID, &r.StrategyType, &r.StrategyBound, &r.RandomSeed, &r.Status,
			&r.IterationCount, &r.CreatedAt, &r.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// UpdateRunStatus updates the status of a run. For terminal statuses
// (completed, failed), it also sets finished_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string) error {
	var result sql.Result
	var err error

	if status == model.RunStatusCompleted || status == model.RunStatusFailed {
		result, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ? WHERE id = ?",
			status, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementRunIteration bumps a run's iteration_count by one.
func (s *SQLiteStore) IncrementRunIteration(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE runs SET iteration_count = iteration_count + 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("increment run iteration: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertIterationRecord persists one attach/detach cycle's outcome.
func (s *SQLiteStore) InsertIterationRecord(ctx context.Context, rec *model.IterationRecord) error {
	tokens, err := json.Marshal(rec.TokenSequence)
	if err != nil {
		return fmt.Errorf("marshal token sequence: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO iteration_records (
			run_id, iteration, outcome, error_code, scheduled_steps,
			schedule_length, token_sequence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Iteration, rec.Outcome, rec.ErrorCode, rec.ScheduledSteps,
		rec.ScheduleLength, string(tokens), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert iteration record: %w", err)
	}
	return nil
}

// ListIterationRecords returns every recorded iteration for a run, ordered
// by iteration number.
func (s *SQLiteStore) ListIterationRecords(ctx context.Context, runID string) ([]model.IterationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, iteration, outcome, error_code, scheduled_steps,
			schedule_length, token_sequence, created_at
		FROM iteration_records WHERE run_id = ? ORDER BY iteration ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list iteration records: %w", err)
	}
	defer rows.Close()

	var recs []model.IterationRecord
	for rows.Next() {
		var rec model.IterationRecord
		var tokens string
		var errCode sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.Iteration, &rec.Outcome, &errCode,
			&rec.ScheduledSteps, &rec.ScheduleLength, &tokens, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan iteration record: %w", err)
		}
		rec.ErrorCode = errCode.String
		if err := json.Unmarshal([]byte(tokens), &rec.TokenSequence); err != nil {
			return nil, fmt.Errorf("unmarshal token sequence: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate iteration records: %w", err)
	}

	return recs, nil
}
