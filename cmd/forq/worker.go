package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run and manage worker processes",
		Long: `Workers claim pending jobs from the store and execute them. Any number
of worker processes can share one store; the claim is atomic, so a job
runs in exactly one of them.

"worker run" runs a worker in the foreground. "worker start" spawns
detached worker processes and records their PIDs; "worker stop" signals
those PIDs to shut down. A signalled worker finishes the job it is
executing, persists the outcome, and then exits.`,
	}
	cmd.AddCommand(newWorkerRunCmd(), newWorkerStartCmd(), newWorkerStopCmd())
	return cmd
}

func newWorkerRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a worker in the foreground until interrupted",
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

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return e.Worker(ctx)
		},
	}
}

func newWorkerStartCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Spawn detached worker processes",
		Long: `Start launches worker processes in the background. Each is a separate
OS process running "forq worker run" against the same config, so they
coordinate purely through the store. PIDs are recorded so "worker stop"
can find them.`,
		Example: `  forq worker start
  forq worker start --count 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate own binary: %w", err)
			}

			registry := newPIDRegistry(cfg.WorkerPIDs)
			entries := make([]workerEntry, 0, count)
			for range count {
				proc := exec.Command(self, "worker", "run", "--config", cfgPath)
				proc.Stdout = os.Stdout
				proc.Stderr = os.Stderr
				// Own process group, so the worker outlives this command
				// and terminal signals don't reach it.
				proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

				if err := proc.Start(); err != nil {
					return fmt.Errorf("start worker: %w", err)
				}
				entries = append(entries, workerEntry{PID: proc.Process.Pid, StartedAt: time.Now().UTC()})
				// The process is detached; Release drops our handle
				// without waiting for it.
				proc.Process.Release() //nolint:errcheck
			}

			if err := registry.Add(entries...); err != nil {
				return err
			}

			for _, entry := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "Started worker pid %d\n", entry.PID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 1, "number of worker processes to start")
	return cmd
}

func newWorkerStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal all recorded workers to shut down",
		Long: `Stop sends SIGTERM to every PID in the worker registry. Each worker
finishes its in-flight job, persists the outcome, and exits; jobs left
mid-flight by a crashed worker are picked up by the next worker's
recovery sweep instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			registry := newPIDRegistry(cfg.WorkerPIDs)
			entries, err := registry.Load()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded workers.")
				return nil
			}

			signalled := make([]int, 0, len(entries))
			for _, entry := range entries {
				if err := syscall.Kill(entry.PID, syscall.SIGTERM); err != nil {
					if errors.Is(err, syscall.ESRCH) {
						fmt.Fprintf(cmd.OutOrStdout(), "Worker pid %d already gone\n", entry.PID)
						continue
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Signal pid %d: %v\n", entry.PID, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopping worker pid %d\n", entry.PID)
				signalled = append(signalled, entry.PID)
			}

			for _, pid := range signalled {
				if waitForExit(pid, cfg.ShutdownWait) {
					fmt.Fprintf(cmd.OutOrStdout(), "Worker pid %d exited\n", pid)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Worker pid %d still finishing its job\n", pid)
				}
			}

			return registry.Clear()
		},
	}
}

// waitForExit polls until the process is gone or the deadline passes.
// Signal 0 probes for existence without delivering anything. A worker
// that outlives the deadline is mid-job; it exits on its own once the
// job's outcome is persisted.
func waitForExit(pid int, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
