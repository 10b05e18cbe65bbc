package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	catalogmysql "github.com/tabletalk/tabletalk/internal/catalog/mysql"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/migrations"
)

func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var timeout time.Duration
	root := &cobra.Command{
		Use:               "tabletalk-migrate",
		Short:             "Apply or roll back the tabletalk registry schema",
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall migration timeout")

	withRunner := func(cmd *cobra.Command, fn func(context.Context, *migrations.Runner) error) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		runner, err := migrations.NewRunner(db)
		if err != nil {
			return err
		}
		return fn(ctx, runner)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(ctx context.Context, runner *migrations.Runner) error {
				applied, err := runner.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration up failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
				return nil
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the newest migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(ctx context.Context, runner *migrations.Runner) error {
				rolled, err := runner.Down(ctx, steps)
				if err != nil {
					return fmt.Errorf("migration down failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", rolled)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(ctx context.Context, runner *migrations.Runner) error {
				statuses, err := runner.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%05d  %-8s %s\n", s.Version, state, s.Path)
				}
				return nil
			})
		},
	}

	root.AddCommand(up, down, status)
	return root
}

func openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.LoadFromEnv("tabletalk-migrate")
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	db, err := catalogmysql.Open(ctx, catalogmysql.DBConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		Database:       cfg.Database.Name,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("database open error: %w", err)
	}
	return db, nil
}
