package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/query"
)

func TestExecuteRunsStatementVerbatim(t *testing.T) {
	db, mock := newSQLMock(t)
	engine := NewEngine(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `students`;")).
		WillReturnRows(sqlmock.NewRows([]string{"SNO", "name", "age"}).
			AddRow(int64(1), []byte("Amy"), int64(20)).
			AddRow(int64(2), []byte("Bo"), nil))

	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT * FROM `students`;"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SNO", "name", "age"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, []any{int64(1), "Amy", int64(20)}, result.Rows[0])
	assert.Equal(t, []any{int64(2), "Bo", nil}, result.Rows[1])

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"SNO":1,"name":"Amy","age":20},{"SNO":2,"name":"Bo","age":null}]`, string(raw))
	assertSQLMock(t, mock)
}

func TestExecuteRejectsBlankSQL(t *testing.T) {
	db, mock := newSQLMock(t)
	_, err := NewEngine(db).Execute(context.Background(), query.Request{SQL: "  "})
	assert.True(t, errs.KindIs(errs.Validation, err))
	assertSQLMock(t, mock)
}

func TestExecuteMapsMissingTable(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `ghost`;")).
		WillReturnError(&gomysql.MySQLError{Number: 1146, Message: "Table 'app.ghost' doesn't exist"})

	_, err := NewEngine(db).Execute(context.Background(), query.Request{SQL: "SELECT * FROM `ghost`;"})
	require.Error(t, err)
	assert.True(t, errs.KindIs(errs.ExecutionNotFound, err))
	assertSQLMock(t, mock)
}

func TestExecuteOtherErrorsAreInternal(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT nope FROM `students`;")).
		WillReturnError(errors.New("Unknown column 'nope'"))

	_, err := NewEngine(db).Execute(context.Background(), query.Request{SQL: "SELECT nope FROM `students`;"})
	assert.True(t, errs.KindIs(errs.Internal, err))
	assertSQLMock(t, mock)
}

func TestNormalizeValuesByColumnType(t *testing.T) {
	values := []any{[]byte("42"), []byte("1.5"), []byte("12.30"), []byte("x"), []byte("18446744073709551615"), nil, int64(7)}
	types := []string{"INT", "DOUBLE", "DECIMAL", "VARCHAR", "UNSIGNED BIGINT", "INT", ""}

	got := normalizeValues(values, types)
	assert.Equal(t, []any{int64(42), 1.5, "12.30", "x", uint64(18446744073709551615), nil, int64(7)}, got)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	require.NoError(t, mock.ExpectationsWereMet(), "unmet sql expectations")
}
