package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

// Files returns the embedded migration scripts rooted at their directory.
func Files() fs.FS {
	sub, err := fs.Sub(embeddedFS, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

type Status struct {
	Version int64
	Path    string
	Applied bool
}

type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB) (*Runner, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	provider, err := goose.NewProvider(goose.DialectMySQL, db, Files())
	if err != nil {
		return nil, fmt.Errorf("init migration provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Up applies every pending migration and reports how many ran.
func (r *Runner) Up(ctx context.Context) (int, error) {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("migrate up: %w", err)
	}
	return len(results), nil
}

// Down rolls back up to steps migrations, newest first.
func (r *Runner) Down(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	runCount := 0
	for runCount < steps {
		if _, err := r.provider.Down(ctx); err != nil {
			if errors.Is(err, goose.ErrNoNextVersion) {
				break
			}
			return runCount, fmt.Errorf("migrate down: %w", err)
		}
		runCount++
	}
	return runCount, nil
}

func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
