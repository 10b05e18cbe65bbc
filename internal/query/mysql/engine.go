package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/query"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Engine runs already-validated SELECT statements against MySQL.
type Engine struct {
	db queryer
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	const op errs.Op = "query.Execute"
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, errs.E(errs.Validation, op, "sql is required")
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, request.SQL)
	if err != nil {
		return query.Result{}, errs.E(kindOf(err), op, fmt.Errorf("execute query: %w", err))
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, errs.E(errs.Internal, op, fmt.Errorf("query columns: %w", err))
	}
	dbTypes := make([]string, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			if i < len(dbTypes) {
				dbTypes[i] = strings.ToUpper(ct.DatabaseTypeName())
			}
		}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, errs.E(errs.Internal, op, fmt.Errorf("scan row: %w", err))
		}
		resultRows = append(resultRows, normalizeValues(values, dbTypes))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, errs.E(errs.Internal, op, fmt.Errorf("iterate rows: %w", err))
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// normalizeValues turns the driver's text-protocol []byte values into
// numbers for integer and floating point columns and strings otherwise.
func normalizeValues(values []any, dbTypes []string) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		raw, ok := value.([]byte)
		if !ok {
			normalized[i] = value
			continue
		}
		text := string(raw)
		switch dbTypes[i] {
		case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
			if n, err := strconv.ParseInt(text, 10, 64); err == nil {
				normalized[i] = n
				continue
			}
		case "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT":
			if n, err := strconv.ParseUint(text, 10, 64); err == nil {
				normalized[i] = n
				continue
			}
		case "FLOAT", "DOUBLE":
			if f, err := strconv.ParseFloat(text, 64); err == nil {
				normalized[i] = f
				continue
			}
		}
		normalized[i] = text
	}
	return normalized
}

const (
	errBadTable    = 1051
	errNoSuchTable = 1146
)

func kindOf(err error) errs.Kind {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errBadTable, errNoSuchTable:
			return errs.ExecutionNotFound
		}
	}
	return errs.Internal
}
