package engine

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-health/guidepost/errors"
)

var (
	windowStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC)
)

func buildTestEngine(t *testing.T, converters ...Converter) (*Engine, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	b := NewBuilder()
	for _, c := range converters {
		switch {
		case c.Matches(Criterion{Kind: KindCharacteristic, Domain: "condition"}) ||
			c.Matches(Criterion{Kind: KindCharacteristic, Domain: "measurement"}):
			b.AppendCharacteristicConverter(c)
		case c.Matches(Criterion{Kind: KindAction, Domain: "procedure"}) ||
			c.Matches(Criterion{Kind: KindAction, Domain: "drug"}):
			b.AppendActionConverter(c)
		default:
			b.AppendTimeFromEventConverter(c)
		}
	}

	eng, err := b.Build(Deps{DB: mockDB, StagingSchema: "temp"})
	require.NoError(t, err)
	return eng, mock
}

func expectBeginRun(mock sqlmock.Sqlmock, rec string, runID int64) {
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "temp".execution_run (recommendation_id, start_datetime, end_datetime, status)
VALUES ($1, $2, $3, $4)
RETURNING run_id`)).
		WithArgs(rec, windowStart, windowEnd, RunStatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}).AddRow(runID))
}

func expectFinishRun(mock sqlmock.Sqlmock, runID int64, status string) {
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "temp".execution_run SET status = $2 WHERE run_id = $1`)).
		WithArgs(runID, status).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestExecuteWritesRunAndIntervals(t *testing.T) {
	intervals := []Interval{
		{PersonID: 11, Start: windowStart, End: windowStart.Add(24 * time.Hour), Type: IntervalPositive},
		{PersonID: 12, Start: windowStart.Add(time.Hour), End: windowStart.Add(2 * time.Hour), Type: IntervalNegative},
	}
	conv := &testConverter{name: "stub", kind: KindCharacteristic, intervals: intervals}
	eng, mock := buildTestEngine(t, conv)

	rec := &Recommendation{
		ID:      "https://example.org/guideline/sepsis",
		Name:    "sepsis-bundle",
		Version: "v1.0.0",
		Plan:    Plan{Criteria: []Criterion{{Name: "has-sepsis", Kind: KindCharacteristic, Domain: "condition", ConceptID: 132797}}},
	}

	expectBeginRun(mock, rec.ID, 7)

	copyStmt := regexp.QuoteMeta(pq.CopyInSchema("temp", "result_interval",
		"run_id", "interval_start", "interval_end", "person_id", "criterion_name", "interval_type"))
	mock.ExpectBegin()
	prepared := mock.ExpectPrepare(copyStmt)
	prepared.ExpectExec().
		WithArgs(int64(7), intervals[0].Start, intervals[0].End, int64(11), "has-sepsis", IntervalPositive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prepared.ExpectExec().
		WithArgs(int64(7), intervals[1].Start, intervals[1].End, int64(12), "has-sepsis", IntervalNegative).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prepared.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	expectFinishRun(mock, 7, RunStatusCompleted)

	err := eng.Execute(context.Background(), rec, windowStart, windowEnd)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteNoIntervalsSkipsCopy(t *testing.T) {
	conv := &testConverter{name: "stub", kind: KindCharacteristic}
	eng, mock := buildTestEngine(t, conv)

	rec := &Recommendation{
		ID:   "https://example.org/guideline/empty",
		Name: "empty",
		Plan: Plan{Criteria: []Criterion{{Name: "nobody", Kind: KindCharacteristic, Domain: "condition", ConceptID: 1}}},
	}

	expectBeginRun(mock, rec.ID, 3)
	expectFinishRun(mock, 3, RunStatusCompleted)

	err := eng.Execute(context.Background(), rec, windowStart, windowEnd)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteUnresolvableCriterionFailsRun(t *testing.T) {
	conv := &testConverter{name: "stub", kind: KindCharacteristic, domain: "condition"}
	eng, mock := buildTestEngine(t, conv)

	rec := &Recommendation{
		ID:   "https://example.org/guideline/odd",
		Name: "odd",
		Plan: Plan{Criteria: []Criterion{{Name: "odd-one", Kind: KindCharacteristic, Domain: "device", ConceptID: 9}}},
	}

	expectBeginRun(mock, rec.ID, 4)
	expectFinishRun(mock, 4, RunStatusFailed)

	err := eng.Execute(context.Background(), rec, windowStart, windowEnd)
	require.Error(t, err)
	assert.True(t, errors.IsExecution(err))
	assert.Contains(t, err.Error(), "no converter accepts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteConverterRejectionFailsRun(t *testing.T) {
	conv := &testConverter{
		name:       "picky",
		kind:       KindAction,
		convertErr: errors.New("unsupported dose unit"),
	}
	eng, mock := buildTestEngine(t, conv)

	rec := &Recommendation{
		ID:   "https://example.org/guideline/dose",
		Name: "dose",
		Plan: Plan{Criteria: []Criterion{{Name: "dose-check", Kind: KindAction, Domain: "drug", ConceptID: 2}}},
	}

	expectBeginRun(mock, rec.ID, 5)
	expectFinishRun(mock, 5, RunStatusFailed)

	err := eng.Execute(context.Background(), rec, windowStart, windowEnd)
	require.Error(t, err)
	assert.True(t, errors.IsExecution(err))
	assert.Contains(t, err.Error(), "unsupported dose unit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteNilRecommendation(t *testing.T) {
	eng, mock := buildTestEngine(t, &testConverter{name: "stub", kind: KindCharacteristic})

	err := eng.Execute(context.Background(), nil, windowStart, windowEnd)
	require.Error(t, err)
	assert.True(t, errors.IsExecution(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentRuns(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	started := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT run_id, recommendation_id, start_datetime, end_datetime, status
FROM "result".execution_run
ORDER BY run_id DESC
LIMIT $1`)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "recommendation_id", "start_datetime", "end_datetime", "status"}).
			AddRow(int64(2), "rec-b", started, started.AddDate(0, 0, 7), RunStatusCompleted).
			AddRow(int64(1), "rec-a", started, started.AddDate(0, 0, 7), RunStatusFailed))

	runs, err := RecentRuns(context.Background(), mockDB, "result", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(2), runs[0].RunID)
	assert.Equal(t, "rec-b", runs[0].RecommendationID)
	assert.Equal(t, RunStatusCompleted, runs[0].Status)
	assert.Equal(t, RunStatusFailed, runs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
