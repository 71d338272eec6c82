package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/vandy-research/roster-cli/internal/model"
)

// PgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pass_runs (
	id         TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS merge_events (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES pass_runs(id),
	record_id  TEXT NOT NULL,
	field      TEXT NOT NULL,
	source     TEXT NOT NULL,
	action     TEXT NOT NULL,
	previous   TEXT,
	value      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pass_runs_stage ON pass_runs(stage);
CREATE INDEX IF NOT EXISTS idx_merge_events_run_id ON merge_events(run_id);
CREATE INDEX IF NOT EXISTS idx_merge_events_record_id ON merge_events(record_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, stage model.Stage) (*model.PassRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pass_runs (id, stage, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(stage), string(model.PassStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert pass run")
	}

	return &model.PassRun{
		ID:        id,
		Stage:     stage,
		Status:    model.PassStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.PassSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pass_runs SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		string(model.PassStatusComplete), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete pass run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: pass run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pass_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.PassStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail pass run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: pass run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PassRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, stage, status, summary, error, created_at, updated_at FROM pass_runs WHERE id = $1`,
		runID,
	)
	return scanPgRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PassRun, error) {
	query := `SELECT id, stage, status, summary, error, created_at, updated_at FROM pass_runs WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		args = append(args, string(filter.Stage))
		query += ` AND stage = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pass runs")
	}
	defer rows.Close()

	var runs []model.PassRun
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate pass runs")
}

func (s *PostgresStore) RecordEvents(ctx context.Context, runID string, events []model.MergeEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, ev := range events {
		if _, err := tx.Exec(ctx,
			`INSERT INTO merge_events (run_id, record_id, field, source, action, previous, value, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, ev.RecordID, ev.Field, string(ev.Source), string(ev.Action), ev.Previous, ev.Value, now,
		); err != nil {
			return eris.Wrap(err, "postgres: insert merge event")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit events")
}

func (s *PostgresStore) ListEvents(ctx context.Context, recordID string) ([]model.MergeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, record_id, field, source, action, previous, value, created_at
		 FROM merge_events WHERE record_id = $1 ORDER BY id`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list merge events")
	}
	defer rows.Close()

	var events []model.MergeEvent
	for rows.Next() {
		var ev model.MergeEvent
		var source, action string
		var previous, value *string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.RecordID, &ev.Field, &source, &action, &previous, &value, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan merge event")
		}
		ev.Source = model.SourceTag(source)
		ev.Action = model.MergeAction(action)
		if previous != nil {
			ev.Previous = *previous
		}
		if value != nil {
			ev.Value = *value
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: iterate merge events")
}

func scanPgRun(row pgx.Row) (*model.PassRun, error) {
	var run model.PassRun
	var stage, status string
	var summaryJSON []byte
	var errText *string

	if err := row.Scan(&run.ID, &stage, &status, &summaryJSON, &errText, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan pass run")
	}

	run.Stage = model.Stage(stage)
	run.Status = model.PassStatus(status)
	if errText != nil {
		run.Error = *errText
	}
	if len(summaryJSON) > 0 {
		var summary model.PassSummary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		run.Summary = &summary
	}
	return &run, nil
}
