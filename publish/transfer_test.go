package publish

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/errors"
)

func newBarePublisher(t *testing.T, lockTimeout time.Duration) (*Publisher, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &Publisher{
		db:          mockDB,
		result:      "result",
		staging:     "temp",
		lockTimeout: lockTimeout,
		log:         zap.NewNop().Sugar(),
	}, mock
}

func expectStagingReset(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "temp".execution_run CASCADE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "temp".result_interval CASCADE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`ALTER SEQUENCE "temp".result_interval_result_id_seq RESTART WITH 1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
}

func expectTransfer(mock sqlmock.Sqlmock, withLockTimeout bool) {
	mock.ExpectBegin()
	if withLockTimeout {
		mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL lock_timeout = '30000ms'`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta(`LOCK TABLE "result".execution_run IN ACCESS EXCLUSIVE MODE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`LOCK TABLE "result".result_interval IN ACCESS EXCLUSIVE MODE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "result".execution_run CASCADE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "result".result_interval CASCADE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "result".execution_run SELECT * FROM "temp".execution_run`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "result".result_interval (run_id, interval_start, interval_end, person_id, criterion_name, interval_type) SELECT run_id, interval_start, interval_end, person_id, criterion_name, interval_type FROM "temp".result_interval ORDER BY result_id`)).
		WillReturnResult(sqlmock.NewResult(0, 8))
	mock.ExpectCommit()
}

// Interval ids are assigned by the result area's sequence on insert, never
// copied from staging, so published ids cannot repeat across cycles.
func TestTransferRenumbersIntervals(t *testing.T) {
	stmt := copyStmt(`"result"`, `"temp"`, "result_interval")
	assert.NotContains(t, stmt, "SELECT *")
	assert.NotContains(t, stmt, "result_id,", "the identifier column must not be copied")
	assert.Contains(t, stmt, "ORDER BY result_id", "staging insert order decides the new numbering")

	assert.Contains(t, copyStmt(`"result"`, `"temp"`, "execution_run"), "SELECT *",
		"run ids are carried over so interval references stay valid")
}

// Expectations are matched in order, so a passing test proves the protocol:
// bounded lock timeout, all locks before any truncate, all truncates before
// any insert, everything inside one transaction.
func TestTransferStatementOrder(t *testing.T) {
	p, mock := newBarePublisher(t, 30*time.Second)

	expectTransfer(mock, true)

	require.NoError(t, p.transfer(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferWithoutLockTimeout(t *testing.T) {
	p, mock := newBarePublisher(t, 0)

	expectTransfer(mock, false)

	require.NoError(t, p.transfer(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Transferring the same staging content twice replays the identical
// truncate-then-copy protocol, so the second run leaves the result area
// exactly as the first did.
func TestTransferTwiceIsIdempotent(t *testing.T) {
	p, mock := newBarePublisher(t, 30*time.Second)

	expectTransfer(mock, true)
	expectTransfer(mock, true)

	require.NoError(t, p.transfer(context.Background()))
	require.NoError(t, p.transfer(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferLockFailureRollsBack(t *testing.T) {
	p, mock := newBarePublisher(t, 30*time.Second)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL lock_timeout = '30000ms'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`LOCK TABLE "result".execution_run IN ACCESS EXCLUSIVE MODE`)).
		WillReturnError(errors.New("canceling statement due to lock timeout"))
	mock.ExpectRollback()

	err := p.transfer(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransfer(err))
	assert.Contains(t, err.Error(), "locking result table execution_run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferCopyFailureRollsBack(t *testing.T) {
	p, mock := newBarePublisher(t, 0)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`LOCK TABLE "result".execution_run`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`LOCK TABLE "result".result_interval`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "result".execution_run CASCADE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "result".result_interval CASCADE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "result".execution_run SELECT * FROM "temp".execution_run`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := p.transfer(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransfer(err), "partial copies must roll back, keeping the previous state")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetStagingStatements(t *testing.T) {
	p, mock := newBarePublisher(t, 0)

	expectStagingReset(mock)

	require.NoError(t, p.resetStaging(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetStagingFailureRollsBack(t *testing.T) {
	p, mock := newBarePublisher(t, 0)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "temp".execution_run CASCADE`)).
		WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	err := p.resetStaging(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncating staging table execution_run")
	assert.NoError(t, mock.ExpectationsWereMet())
}
