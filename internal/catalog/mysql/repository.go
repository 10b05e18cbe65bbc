package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/guard"
)

const (
	errTableExists = 1050
	errBadTable    = 1051
	errNoSuchTable = 1146
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errs.E(errs.Internal, errs.Op("catalog.HealthCheck"), fmt.Errorf("ping mysql db: %w", err))
	}
	return nil
}

// GetMetadata returns the registered column definition for tableName.
func (r *Repository) GetMetadata(ctx context.Context, tableName string) (string, error) {
	const op errs.Op = "catalog.GetMetadata"
	query := `
SELECT MDATA
FROM STORE_META
WHERE TABLENAME = ?
ORDER BY SNO DESC
LIMIT 1`
	var metadata string
	if err := r.db.QueryRowContext(ctx, query, tableName).Scan(&metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errs.E(errs.ExecutionNotFound, op, fmt.Errorf("no metadata found for table %s: %w", tableName, catalog.ErrNotFound))
		}
		return "", errs.E(errs.Internal, op, fmt.Errorf("get metadata: %w", err))
	}
	if strings.TrimSpace(metadata) == "" {
		return "", errs.E(errs.ExecutionNotFound, op, fmt.Errorf("no metadata found for table %s: %w", tableName, catalog.ErrNotFound))
	}
	return metadata, nil
}

func (r *Repository) CreateTable(ctx context.Context, def catalog.TableDef) error {
	const op errs.Op = "catalog.CreateTable"
	if err := def.Validate(); err != nil {
		return errs.E(errs.Validation, op, err)
	}
	stmt := fmt.Sprintf("CREATE TABLE %s %s", guard.QuoteIdent(def.Name), def.Definition())
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		if mysqlErrorNumber(err) == errTableExists {
			return errs.E(errs.ExecutionConflict, op, fmt.Errorf("table %s already exists: %w", def.Name, catalog.ErrAlreadyExists))
		}
		return errs.E(errs.Internal, op, fmt.Errorf("create table: %w", err))
	}
	return nil
}

func (r *Repository) RegisterTable(ctx context.Context, def catalog.TableDef) error {
	const op errs.Op = "catalog.RegisterTable"
	query := `
INSERT INTO STORE_META (TABLENAME, MDATA)
VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, def.Name, def.Definition()); err != nil {
		return errs.E(errs.Internal, op, fmt.Errorf("store metadata: %w", err))
	}
	return nil
}

// InsertRows loads rows in one transaction. Every row key must be a declared
// column; missing columns are inserted as NULL.
func (r *Repository) InsertRows(ctx context.Context, def catalog.TableDef, rows []catalog.Row) (int, error) {
	const op errs.Op = "catalog.InsertRows"
	if len(rows) == 0 {
		return 0, nil
	}
	for i, row := range rows {
		for key := range row {
			if _, ok := def.Column(key); !ok {
				return 0, errs.E(errs.Validation, op, fmt.Errorf("row %d: unknown column %q", i, key))
			}
		}
	}

	columns := def.ColumnNames()
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = guard.QuoteIdent(name)
		placeholders[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		guard.QuoteIdent(def.Name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.E(errs.Internal, op, fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	for i, row := range rows {
		args := make([]any, len(columns))
		for j, name := range columns {
			args[j] = lookupValue(row, name)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, errs.E(errs.Internal, op, fmt.Errorf("insert row %d: %w", i, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errs.E(errs.Internal, op, fmt.Errorf("commit tx: %w", err))
	}
	return len(rows), nil
}

func (r *Repository) TableExists(ctx context.Context, tableName string) (bool, error) {
	const op errs.Op = "catalog.TableExists"
	query := `
SELECT COUNT(*)
FROM information_schema.TABLES
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, tableName).Scan(&count); err != nil {
		return false, errs.E(errs.Internal, op, fmt.Errorf("check table: %w", err))
	}
	return count > 0, nil
}

func (r *Repository) DropTable(ctx context.Context, tableName string) error {
	const op errs.Op = "catalog.DropTable"
	if !guard.IsIdentifier(tableName) {
		return errs.E(errs.Validation, op, fmt.Errorf("invalid table name %q", tableName))
	}
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+guard.QuoteIdent(tableName)); err != nil {
		if n := mysqlErrorNumber(err); n == errBadTable || n == errNoSuchTable {
			return errs.E(errs.ExecutionNotFound, op, fmt.Errorf("table %s: %w", tableName, catalog.ErrNotFound))
		}
		return errs.E(errs.Internal, op, fmt.Errorf("drop table: %w", err))
	}
	return nil
}

func (r *Repository) DeleteMetadata(ctx context.Context, tableName string) error {
	const op errs.Op = "catalog.DeleteMetadata"
	if _, err := r.db.ExecContext(ctx, `DELETE FROM STORE_META WHERE TABLENAME = ?`, tableName); err != nil {
		return errs.E(errs.Internal, op, fmt.Errorf("delete metadata: %w", err))
	}
	return nil
}

func lookupValue(row catalog.Row, column string) any {
	if value, ok := row[column]; ok {
		return value
	}
	for key, value := range row {
		if strings.EqualFold(key, column) {
			return value
		}
	}
	return nil
}

func mysqlErrorNumber(err error) uint16 {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number
	}
	return 0
}
