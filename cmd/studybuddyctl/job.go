package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harishm17/study-buddy/internal/store"
)

func jobCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "job JOB_ID",
		Short: "Print a job row as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("job ID must be a UUID: %w", err)
			}

			_, pool, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			job, err := store.NewPostgresStore(pool).GetJob(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("job %s not found", id)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		},
	}
}
