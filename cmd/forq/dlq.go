package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/queueworks/forq/job"
)

func newDLQCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and requeue dead jobs",
		Long: `Jobs whose retry budget is exhausted land in the dead letter queue.
They stay there, with their last error, until a human requeues them or
deletes the record.`,
	}
	cmd.AddCommand(newDLQListCmd(), newDLQRequeueCmd())
	return cmd
}

func newDLQListCmd() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			e, s, err := buildEngine(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			jobs, err := e.DLQ().List(cmd.Context(), job.ListOpts{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Dead letter queue is empty.")
				return nil
			}

			printJobs(cmd, jobs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to print")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}

func newDLQRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Move a dead job back to pending with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			e, s, err := buildEngine(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			j, err := e.DLQ().Requeue(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s (max retries: %d)\n", j.ID, j.MaxRetries)
			return nil
		},
	}
}
