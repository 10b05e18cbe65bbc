// Package catalog describes user-provisioned tables and the STORE_META
// registry that records their column definitions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tabletalk/tabletalk/internal/guard"
)

var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrAlreadyExists = errors.New("catalog: table already exists")
)

const (
	// SurrogateKey is the implicit first column of every provisioned table.
	SurrogateKey = "SNO"
	// MaxDefinitionLength is the width of STORE_META.MDATA.
	MaxDefinitionLength = 500
	// MaxTableNameLength is the width of STORE_META.TABLENAME, capped by the
	// MySQL identifier limit.
	MaxTableNameLength = 64
)

// Repository is the registry plus the DDL/DML needed to provision and drop
// tables. Every value is bound; identifiers are validated and quoted.
type Repository interface {
	HealthCheck(ctx context.Context) error
	GetMetadata(ctx context.Context, tableName string) (string, error)
	CreateTable(ctx context.Context, def TableDef) error
	RegisterTable(ctx context.Context, def TableDef) error
	InsertRows(ctx context.Context, def TableDef, rows []Row) (int, error)
	TableExists(ctx context.Context, tableName string) (bool, error)
	DropTable(ctx context.Context, tableName string) error
	DeleteMetadata(ctx context.Context, tableName string) error
}

type Column struct {
	Name string
	Type string
}

type TableDef struct {
	Name    string
	Columns []Column
}

// Row maps column name to value for one record to insert.
type Row map[string]any

// Definition renders the column-definition fragment used both in CREATE
// TABLE and as the registry text, e.g.
// (SNO INT PRIMARY KEY AUTO_INCREMENT, `name` varchar(50), `age` int).
func (d TableDef) Definition() string {
	parts := make([]string, 0, len(d.Columns)+1)
	parts = append(parts, SurrogateKey+" INT PRIMARY KEY AUTO_INCREMENT")
	for _, col := range d.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", guard.QuoteIdent(col.Name), strings.TrimSpace(col.Type)))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (d TableDef) ColumnNames() []string {
	names := make([]string, 0, len(d.Columns))
	for _, col := range d.Columns {
		names = append(names, col.Name)
	}
	return names
}

// Column looks a column up case-insensitively, as MySQL does.
func (d TableDef) Column(name string) (Column, bool) {
	for _, col := range d.Columns {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return Column{}, false
}

// Validate checks the table name, every column name and every type fragment
// before anything is sent to the database.
func (d TableDef) Validate() error {
	if !guard.IsIdentifier(d.Name) {
		return fmt.Errorf("invalid table name %q: only letters, digits and underscores are allowed", d.Name)
	}
	if len(d.Name) > MaxTableNameLength {
		return fmt.Errorf("table name %q is longer than %d characters", d.Name, MaxTableNameLength)
	}
	if len(d.Columns) == 0 {
		return fmt.Errorf("invalid metadata: at least one column is required")
	}
	seen := make(map[string]struct{}, len(d.Columns))
	for _, col := range d.Columns {
		if !guard.IsIdentifier(col.Name) {
			return fmt.Errorf("invalid metadata: column name %q is not allowed", col.Name)
		}
		key := strings.ToLower(col.Name)
		if key == strings.ToLower(SurrogateKey) {
			return fmt.Errorf("invalid metadata: column name %q is reserved", col.Name)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("invalid metadata: duplicate column %q", col.Name)
		}
		seen[key] = struct{}{}
		if !guard.IsColumnType(col.Type) {
			return fmt.Errorf("invalid metadata: type %q for column %q is not allowed", col.Type, col.Name)
		}
	}
	if n := len(d.Definition()); n > MaxDefinitionLength {
		return fmt.Errorf("invalid metadata: column definition is %d characters, limit is %d", n, MaxDefinitionLength)
	}
	return nil
}
