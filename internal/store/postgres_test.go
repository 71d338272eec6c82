package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vandy-research/roster-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgresMigrate(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pass_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateRun(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO pass_runs").
		WithArgs(pgxmock.AnyArg(), "bootstrapped", "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := st.CreateRun(context.Background(), model.StageBootstrapped)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.PassStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteRun(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE pass_runs SET status").
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.CompleteRun(context.Background(), "run-1", &model.PassSummary{RecordsIn: 5})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteRunNotFound(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE pass_runs SET status").
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.CompleteRun(context.Background(), "missing", &model.PassSummary{})
	assert.Error(t, err)
}

func TestPostgresFailRun(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE pass_runs SET status").
		WithArgs("failed", "boom", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, st.FailRun(context.Background(), "run-1", "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRun(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	summaryJSON, err := json.Marshal(&model.PassSummary{RecordsIn: 7, Matched: 6})
	require.NoError(t, err)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, stage, status, summary, error, created_at, updated_at FROM pass_runs").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "stage", "status", "summary", "error", "created_at", "updated_at"}).
			AddRow("run-1", "listed", "complete", summaryJSON, (*string)(nil), now, now))

	run, err := st.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageListed, run.Stage)
	assert.Equal(t, model.PassStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 7, run.Summary.RecordsIn)
}

func TestPostgresListRuns(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, stage, status, summary, error, created_at, updated_at FROM pass_runs").
		WithArgs("enriched", 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "stage", "status", "summary", "error", "created_at", "updated_at"}).
			AddRow("run-1", "enriched", "running", []byte(nil), (*string)(nil), now, now))

	runs, err := st.ListRuns(context.Background(), RunFilter{Stage: model.StageEnriched, Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.StageEnriched, runs[0].Stage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordEvents(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO merge_events").
		WithArgs("run-1", "faculty_a", "website", "web_scraping_listing", "set", "", "https://jane.example.edu", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	events := []model.MergeEvent{
		{RecordID: "faculty_a", Field: "website", Source: model.SourceListing, Action: model.MergeActionSet, Value: "https://jane.example.edu"},
	}
	require.NoError(t, st.RecordEvents(context.Background(), "run-1", events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordEventsRollbackOnError(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO merge_events").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	events := []model.MergeEvent{{RecordID: "faculty_a", Field: "name"}}
	assert.Error(t, st.RecordEvents(context.Background(), "run-1", events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListEvents(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	prev := "old"
	val := "new"
	mock.ExpectQuery("SELECT id, run_id, record_id, field, source, action, previous, value, created_at").
		WithArgs("faculty_a").
		WillReturnRows(pgxmock.NewRows([]string{"id", "run_id", "record_id", "field", "source", "action", "previous", "value", "created_at"}).
			AddRow(int64(1), "run-1", "faculty_a", "title", "FIS", "overwrite", &prev, &val, now))

	events, err := st.ListEvents(context.Background(), "faculty_a")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.MergeActionOverwrite, events[0].Action)
	assert.Equal(t, "old", events[0].Previous)
	assert.Equal(t, "new", events[0].Value)
}
