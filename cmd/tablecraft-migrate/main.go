package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/catalog/sqlstore"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/migrations"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tablecraft-migrate",
		Short:         "Apply or roll back the catalog schema",
		SilenceUsage: true,
	}
	var steps int
	root.PersistentFlags().IntVar(&steps, "steps", 0, "number of migration steps; 0 means all for up, 1 for down")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCatalog(cmd.Context(), func(ctx context.Context, runner *migrations.Runner, db *sql.DB) error {
					applied, err := runner.Up(ctx, db, steps)
					if err != nil {
						return fmt.Errorf("migration up failed: %w", err)
					}
					cmd.Printf("applied %d migration(s)\n", applied)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the newest migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCatalog(cmd.Context(), func(ctx context.Context, runner *migrations.Runner, db *sql.DB) error {
					rolledBack, err := runner.Down(ctx, db, steps)
					if err != nil {
						return fmt.Errorf("migration down failed: %w", err)
					}
					cmd.Printf("rolled back %d migration(s)\n", rolledBack)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List known migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCatalog(cmd.Context(), func(ctx context.Context, runner *migrations.Runner, db *sql.DB) error {
					states, err := runner.Status(ctx, db)
					if err != nil {
						return err
					}
					for _, state := range states {
						status := "pending"
						if state.Applied {
							status = "applied"
						}
						cmd.Printf("%06d\t%s\n", state.Version, status)
					}
					return nil
				})
			},
		},
	)
	return root
}

func withCatalog(parent context.Context, run func(context.Context, *migrations.Runner, *sql.DB) error) error {
	cfg, err := config.LoadFromEnv("tablecraft-migrate")
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	dialect, err := catalog.ParseDialect(cfg.Catalog.Driver)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	db, err := sqlstore.Open(ctx, sqlstore.DBConfig{
		Dialect:     dialect,
		DSN:         cfg.Catalog.DSN,
		BusyTimeout: cfg.Databases.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("catalog open error: %w", err)
	}
	defer func() { _ = db.Close() }()
	return run(ctx, migrations.NewRunner(dialect), db)
}
