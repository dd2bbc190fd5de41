// Package proc runs external commands with timeouts, output caps, and
// controlled environments. It is the execution substrate for the pipeline
// sequencer and the environment provisioner.
package proc

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Command describes a single subprocess invocation.
type Command struct {
	// Binary is the program to run. Required.
	Binary string

	// Args are passed verbatim to the binary.
	Args []string

	// Dir is the working directory. Empty means the caller's.
	Dir string

	// Env holds variables set for the child. With InheritEnv they overlay
	// the parent environment; otherwise they are the whole environment.
	Env map[string]string

	// InheritEnv passes the parent environment through. Variables absent
	// from the parent stay absent in the child.
	InheritEnv bool

	// TimeoutMs limits wall time. Zero falls back to the runner default;
	// a zero default means no limit.
	TimeoutMs int64

	// MaxOutputBytes caps captured stdout/stderr individually. Zero falls
	// back to the runner default.
	MaxOutputBytes int64

	// Stdout/Stderr, when set, receive the child's output as it is
	// produced, in addition to capture.
	Stdout io.Writer
	Stderr io.Writer
}

// CommandLine renders the invocation for logs.
func (c Command) CommandLine() string {
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of one subprocess run.
type Result struct {
	// ExitCode is the child's exit status. -1 when the process never ran
	// or was killed before exiting on its own.
	ExitCode int

	Stdout string
	Stderr string

	Duration   time.Duration
	StartedAt  time.Time
	FinishedAt time.Time

	// Killed reports that the runner terminated the child (timeout or
	// context cancellation); KillReason says which.
	Killed     bool
	KillReason string

	// Truncated reports that output exceeded the cap; TruncatedBytes
	// counts what was discarded.
	Truncated      bool
	TruncatedBytes int64

	// Err is set only for infrastructure failures (binary missing, start
	// failure). A non-zero exit is not an infrastructure failure.
	Err error
}

// Failed reports whether the run should be treated as unsuccessful.
func (r *Result) Failed() bool {
	return r.Err != nil || r.Killed || r.ExitCode != 0
}

// Output returns the most useful captured stream: stdout when present,
// stderr otherwise.
func (r *Result) Output() string {
	if strings.TrimSpace(r.Stdout) != "" {
		return r.Stdout
	}
	return r.Stderr
}

// Runner executes commands. The default implementation is ExecRunner;
// tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Options tune an ExecRunner.
type Options struct {
	// DefaultTimeout applies when a command carries none. Zero means
	// unlimited, which the sequencer relies on for long fetch runs.
	DefaultTimeout time.Duration

	// MaxTimeout caps per-command timeouts when positive.
	MaxTimeout time.Duration

	// MaxOutputBytes is the capture cap when a command carries none.
	MaxOutputBytes int64
}

// DefaultOptions returns the runner defaults used by the CLI.
func DefaultOptions() Options {
	return Options{
		DefaultTimeout: 0,
		MaxTimeout:     0,
		MaxOutputBytes: 2 * 1024 * 1024,
	}
}

func (o Options) timeoutFor(cmd Command) time.Duration {
	t := o.DefaultTimeout
	if cmd.TimeoutMs > 0 {
		t = time.Duration(cmd.TimeoutMs) * time.Millisecond
	}
	if o.MaxTimeout > 0 && (t == 0 || t > o.MaxTimeout) {
		t = o.MaxTimeout
	}
	return t
}

func (o Options) outputCapFor(cmd Command) int64 {
	if cmd.MaxOutputBytes > 0 {
		return cmd.MaxOutputBytes
	}
	if o.MaxOutputBytes > 0 {
		return o.MaxOutputBytes
	}
	return 1024 * 1024
}

// Validate rejects commands that cannot be run.
func Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	return nil
}
