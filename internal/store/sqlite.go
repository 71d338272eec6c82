package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/vandy-research/roster-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pass_runs (
	id         TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS merge_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES pass_runs(id),
	record_id  TEXT NOT NULL,
	field      TEXT NOT NULL,
	source     TEXT NOT NULL,
	action     TEXT NOT NULL,
	previous   TEXT,
	value      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pass_runs_stage ON pass_runs(stage);
CREATE INDEX IF NOT EXISTS idx_merge_events_run_id ON merge_events(run_id);
CREATE INDEX IF NOT EXISTS idx_merge_events_record_id ON merge_events(record_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, stage model.Stage) (*model.PassRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pass_runs (id, stage, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(stage), string(model.PassStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert pass run")
	}

	return &model.PassRun{
		ID:        id,
		Stage:     stage,
		Status:    model.PassStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.PassSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pass_runs SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(model.PassStatusComplete), string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete pass run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pass_runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.PassStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail pass run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PassRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, stage, status, summary, error, created_at, updated_at FROM pass_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PassRun, error) {
	query := `SELECT id, stage, status, summary, error, created_at, updated_at FROM pass_runs WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pass runs")
	}
	defer rows.Close()

	var runs []model.PassRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate pass runs")
}

func (s *SQLiteStore) RecordEvents(ctx context.Context, runID string, events []model.MergeEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO merge_events (run_id, record_id, field, source, action, previous, value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert event")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			runID, ev.RecordID, ev.Field, string(ev.Source), string(ev.Action), ev.Previous, ev.Value, now,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert merge event")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit events")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, recordID string) ([]model.MergeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, record_id, field, source, action, previous, value, created_at
		 FROM merge_events WHERE record_id = ? ORDER BY id`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list merge events")
	}
	defer rows.Close()

	var events []model.MergeEvent
	for rows.Next() {
		var ev model.MergeEvent
		var source, action string
		var previous, value sql.NullString
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.RecordID, &ev.Field, &source, &action, &previous, &value, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan merge event")
		}
		ev.Source = model.SourceTag(source)
		ev.Action = model.MergeAction(action)
		ev.Previous = previous.String
		ev.Value = value.String
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: iterate merge events")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.PassRun, error) {
	var run model.PassRun
	var stage, status string
	var summaryJSON, errText sql.NullString

	if err := row.Scan(&run.ID, &stage, &status, &summaryJSON, &errText, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Wrap(err, "store: pass run not found")
		}
		return nil, eris.Wrap(err, "store: scan pass run")
	}

	run.Stage = model.Stage(stage)
	run.Status = model.PassStatus(status)
	run.Error = errText.String
	if summaryJSON.Valid && summaryJSON.String != "" {
		var summary model.PassSummary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal summary")
		}
		run.Summary = &summary
	}
	return &run, nil
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Errorf("store: pass run %s not found", runID)
	}
	return nil
}
