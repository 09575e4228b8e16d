package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/queueworks/forq/job"
)

func newListCmd() *cobra.Command {
	var (
		state  string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in a given state",
		Example: `  forq list
  forq list --state dead
  forq list --state completed --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := job.State(state)
			if !st.Valid() {
				return fmt.Errorf("unknown state %q (want one of %v)", state, job.States)
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

			jobs, err := e.List(cmd.Context(), st, job.ListOpts{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s jobs.\n", st)
				return nil
			}

			printJobs(cmd, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "pending", "job state to list (pending, processing, completed, dead)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to print")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per state",
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

			counts, err := e.Stats(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATE\tJOBS")
			for _, st := range job.States {
				fmt.Fprintf(w, "%s\t%d\n", st, counts[st])
			}
			return w.Flush()
		},
	}
}

func printJobs(cmd *cobra.Command, jobs []*job.Job) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tATTEMPTS\tCOMMAND\tLAST ERROR\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			j.ID, j.State, j.Attempts, j.MaxRetries,
			truncate(j.Command, 40), truncate(j.LastError, 40),
			j.CreatedAt.Local().Format(time.DateTime),
		)
	}
	w.Flush() //nolint:errcheck
}

// truncate shortens s to at most n runes, never splitting a multibyte
// character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
