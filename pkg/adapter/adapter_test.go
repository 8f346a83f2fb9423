package adapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/modelq/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockAdapter(t *testing.T) (*BaseSQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &BaseSQLAdapter{DB: db, Logger: testutil.NewTestLogger(t)}, mock
}

func TestQueryReadAll(t *testing.T) {
	a, mock := mockAdapter(t)
	mock.ExpectQuery("SELECT (.+) FROM funnel").WillReturnRows(
		sqlmock.NewRows([]string{"step", "count"}).
			AddRow("Top of Funnel", int64(120)).
			AddRow("signup", int64(80)).
			AddRow("activate", nil),
	)

	rows, err := a.Query(context.Background(), `SELECT "step", "count" FROM funnel`)
	require.NoError(t, err)
	cols, values, err := rows.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"step", "count"}, cols)
	require.Len(t, values, 3)
	assert.Equal(t, "Top of Funnel", values[0][0])
	assert.Equal(t, int64(80), values[1][1])
	assert.Nil(t, values[2][1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadAllConvertsBytes(t *testing.T) {
	a, mock := mockAdapter(t)
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"name"}).AddRow([]byte("bytes survive")),
	)

	rows, err := a.Query(context.Background(), "SELECT name FROM t")
	require.NoError(t, err)
	_, values, err := rows.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "bytes survive", values[0][0])
}

func TestExec(t *testing.T) {
	a, mock := mockAdapter(t)
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, a.Exec(context.Background(), "CREATE TABLE t (x INT)"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotConnected(t *testing.T) {
	a := &BaseSQLAdapter{}
	assert.False(t, a.IsConnected())
	assert.Error(t, a.Exec(context.Background(), "SELECT 1"))
	_, err := a.Query(context.Background(), "SELECT 1")
	assert.Error(t, err)
	assert.NoError(t, a.Close())
}

func TestClose(t *testing.T) {
	a, mock := mockAdapter(t)
	mock.ExpectClose()
	assert.True(t, a.IsConnected())
	require.NoError(t, a.Close())
}
