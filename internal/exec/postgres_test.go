package exec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate(t *testing.T) (*PostgresGate, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresGate(db, 100000, 5000), mock
}

func TestRunRejectsLargePlanBeforeExecuting(t *testing.T) {
	gate, mock := newGate(t)
	query := "select * from users limit 100"

	mock.ExpectQuery("EXPLAIN " + query).WillReturnRows(
		sqlmock.NewRows([]string{"QUERY PLAN"}).
			AddRow("Seq Scan on users  (cost=0.00..35811.00 rows=250000 width=244)"),
	)

	_, err := gate.Run(context.Background(), query)

	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, int64(250000), capErr.Estimated)
	assert.Equal(t, int64(100000), capErr.Ceiling)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunPlansThenExecutesUnderTimeout(t *testing.T) {
	gate, mock := newGate(t)
	query := "select id, name from users limit 100"

	mock.ExpectQuery("EXPLAIN " + query).WillReturnRows(
		sqlmock.NewRows([]string{"QUERY PLAN"}).
			AddRow("Seq Scan on users  (cost=0.00..1.02 rows=2 width=36)"),
	)
	mock.ExpectExec("SET statement_timeout = 5000").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("ada")).
			AddRow(int64(2), []byte("grace")),
	)
	mock.ExpectExec("RESET statement_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))

	result, err := gate.Run(context.Background(), query)

	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, result.Columns)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, "ada", result.Rows[0][1])
	assert.Contains(t, result.Plan, "rows=2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunExecutesWhenExplainFails(t *testing.T) {
	gate, mock := newGate(t)
	query := "select id from users limit 100"

	mock.ExpectQuery("EXPLAIN " + query).WillReturnError(assert.AnError)
	mock.ExpectExec("SET statement_timeout = 5000").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(int64(1)),
	)
	mock.ExpectExec("RESET statement_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))

	result, err := gate.Run(context.Background(), query)

	require.NoError(t, err)
	assert.Equal(t, 1, result.RowCount)
	assert.Empty(t, result.Plan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunPassesThroughExecutionError(t *testing.T) {
	gate, mock := newGate(t)
	query := "select * from users limit 100"

	mock.ExpectQuery("EXPLAIN " + query).WillReturnRows(
		sqlmock.NewRows([]string{"QUERY PLAN"}).
			AddRow("Seq Scan on users  (cost=0.00..1.02 rows=2 width=36)"),
	)
	mock.ExpectExec("SET statement_timeout = 5000").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(query).WillReturnError(assert.AnError)
	mock.ExpectExec("RESET statement_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := gate.Run(context.Background(), query)

	require.Error(t, err)
	var capErr *CapacityError
	assert.False(t, errors.As(err, &capErr))
}

func TestNormalizeSQLValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 12.5, normalizeSQLValue([]byte("12.5")))
	assert.Equal(t, "pending", normalizeSQLValue([]byte("pending")))
	assert.Equal(t, "2024-03-01T12:00:00Z", normalizeSQLValue(ts))
	assert.Nil(t, normalizeSQLValue(nil))
	assert.Equal(t, int64(7), normalizeSQLValue(int64(7)))
}
