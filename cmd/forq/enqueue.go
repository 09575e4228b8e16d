package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/queueworks/forq/job"
)

func newEnqueueCmd() *cobra.Command {
	var (
		jobID      string
		maxRetries int
	)

	cmd := &cobra.Command{
		Use:   "enqueue <command> [args...]",
		Short: "Add a shell command to the queue",
		Long: `Enqueue persists a shell command as a pending job. Any running worker
may pick it up. Multiple arguments are joined with spaces and run
through the shell, so quoting works the way it does in your terminal.`,
		Example: `  forq enqueue "curl -fsS https://example.com/ping"
  forq enqueue --max-retries 5 ./backup.sh
  forq enqueue --id job_nightly_report "make report"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("max-retries") && maxRetries < 0 {
				return fmt.Errorf("--max-retries must be non-negative, got %d", maxRetries)
			}

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

			opts := []job.Option{}
			if jobID != "" {
				opts = append(opts, job.WithID(jobID))
			}
			if cmd.Flags().Changed("max-retries") {
				opts = append(opts, job.WithMaxRetries(maxRetries))
			}

			j, err := e.Enqueue(cmd.Context(), strings.Join(args, " "), opts...)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s (max retries: %d)\n", j.ID, j.MaxRetries)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "id", "", "explicit job ID (generated when empty)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", -1, "retry budget for this job (default from settings)")
	return cmd
}
