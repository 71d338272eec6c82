package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "roster.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// runAudited wraps one pass in a recorded run: the run row is created before
// the pass starts and completed (or failed) with its summary and merge events
// afterwards. Audit failures are logged, never fatal; the snapshot is the
// source of truth.
func runAudited(ctx context.Context, stage model.Stage, fn func(ctx context.Context) (*model.PassSummary, []model.MergeEvent, error)) (*model.PassSummary, error) {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("audit store unavailable, pass will not be recorded", zap.Error(err))
		summary, _, passErr := fn(ctx)
		return summary, passErr
	}
	defer st.Close()

	run, err := st.CreateRun(ctx, stage)
	if err != nil {
		zap.L().Warn("create run", zap.Error(err))
		summary, _, passErr := fn(ctx)
		return summary, passErr
	}

	summary, events, passErr := fn(ctx)
	if passErr != nil {
		if failErr := st.FailRun(ctx, run.ID, passErr.Error()); failErr != nil {
			zap.L().Warn("record failed run", zap.String("run_id", run.ID), zap.Error(failErr))
		}
		return summary, passErr
	}

	if err := st.RecordEvents(ctx, run.ID, events); err != nil {
		zap.L().Warn("record merge events", zap.String("run_id", run.ID), zap.Error(err))
	}
	if err := st.CompleteRun(ctx, run.ID, summary); err != nil {
		zap.L().Warn("complete run", zap.String("run_id", run.ID), zap.Error(err))
	}
	return summary, nil
}
