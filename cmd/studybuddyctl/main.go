// Package main is studybuddyctl, the operator CLI for migrations and jobs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/harishm17/study-buddy/internal/config"
	"github.com/harishm17/study-buddy/internal/logging"
	"github.com/harishm17/study-buddy/internal/store"
)

func main() {
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, getenv("LOG_LEVEL", "warn"))))

	root := &cobra.Command{
		Use:           "studybuddyctl",
		Short:         "Operate the StudyBuddy job pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCMD(), enqueueCMD(), jobCMD())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// openStore loads the full config and connects to Postgres.
func openStore(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}
