// Package worker provides the job execution engine — an Executor that
// runs a job's shell command, and a Worker that polls the store,
// claims jobs, and drives the retry state machine.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/queueworks/forq/job"
)

// Executor runs a single job's command to completion.
type Executor interface {
	// Run executes the job's command. A nil return means success;
	// any error counts as a failed attempt.
	Run(ctx context.Context, j *job.Job) error
}

// stderrTailLimit bounds how much captured stderr ends up in the
// recorded error message.
const stderrTailLimit = 512

// ShellExecutor executes job commands through a shell, so pipes,
// redirects, and environment expansion work as they would
// interactively.
type ShellExecutor struct {
	// Shell is the interpreter invoked as `shell -c command`.
	// Defaults to /bin/sh.
	Shell string
}

// NewShellExecutor returns a ShellExecutor using /bin/sh.
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{Shell: "/bin/sh"}
}

// Run executes the command and waits for it to exit. On failure the
// returned error carries the exit status and a tail of stderr, which
// becomes the job's last_error.
func (e *ShellExecutor) Run(ctx context.Context, j *job.Job) error {
	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, shell, "-c", j.Command)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if tail := stderrTail(stderr.Bytes()); tail != "" {
		return fmt.Errorf("%w: %s", err, tail)
	}
	return err
}

// stderrTail returns the last stderrTailLimit bytes of captured
// stderr, trimmed and flattened to a single line.
func stderrTail(b []byte) string {
	if len(b) > stderrTailLimit {
		b = b[len(b)-stderrTailLimit:]
	}
	s := strings.TrimSpace(string(b))
	return strings.ReplaceAll(s, "\n", " | ")
}
