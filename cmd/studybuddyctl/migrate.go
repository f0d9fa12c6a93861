package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/harishm17/study-buddy/internal/store"
)

func migrateCMD() *cobra.Command {
	var dsn, dir string

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			return nil
		},
	}
	migrate.PersistentFlags().StringVar(&dsn, "database-url", getenv("DATABASE_URL", ""), "postgres connection URL")
	migrate.PersistentFlags().StringVar(&dir, "dir", getenv("MIGRATIONS_DIR", "migrations"), "migrations directory or source URL")

	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return store.Migrate(dsn, dir, "up", 0)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return store.Migrate(dsn, dir, "down", 0)
			},
		},
		stepsCMD(&dsn, &dir),
	)
	return migrate
}

func stepsCMD(dsn, dir *string) *cobra.Command {
	var down bool
	steps := &cobra.Command{
		Use:   "steps N",
		Short: "Apply the next N migrations, or revert the last N with --down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseSteps(args[0])
			if err != nil {
				return err
			}
			direction := "up"
			if down {
				direction = "down"
			}
			return store.Migrate(*dsn, *dir, direction, n)
		},
	}
	steps.Flags().BoolVar(&down, "down", false, "revert instead of apply")
	return steps
}

func parseSteps(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("steps must be a positive integer, got %q", arg)
	}
	return n, nil
}
