package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ExecRunner runs commands directly on the host with os/exec.
type ExecRunner struct {
	opts   Options
	logger *zap.Logger
}

// NewRunner creates a runner with the given options.
func NewRunner(opts Options, logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{opts: opts, logger: logger}
}

// Run executes cmd and returns its result. Only validation failures return
// an error; start failures are reported in Result.Err so callers can treat
// them uniformly with non-zero exits.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}

	timeout := r.opts.timeoutFor(cmd)
	maxOutput := r.opts.outputCapFor(cmd)

	r.logger.Debug("running command",
		zap.String("command", cmd.CommandLine()),
		zap.String("dir", cmd.Dir),
		zap.Duration("timeout", timeout))

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.Env = buildEnv(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: maxOutput}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited
	if cmd.Stdout != nil {
		execCmd.Stdout = io.MultiWriter(cmd.Stdout, stdoutLimited)
	}
	if cmd.Stderr != nil {
		execCmd.Stderr = io.MultiWriter(cmd.Stderr, stderrLimited)
	}

	result := &Result{ExitCode: -1}
	result.StartedAt = time.Now()

	err := execCmd.Run()

	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		r.logger.Warn("command output truncated",
			zap.String("command", cmd.Binary),
			zap.Int64("discarded", result.TruncatedBytes))
	}

	switch {
	case err == nil:
		result.ExitCode = 0
	case execCtx.Err() == context.DeadlineExceeded:
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", timeout)
		r.logger.Warn("command killed",
			zap.String("command", cmd.Binary),
			zap.String("reason", result.KillReason))
	case execCtx.Err() == context.Canceled:
		result.Killed = true
		result.KillReason = "context canceled"
		r.logger.Debug("command canceled", zap.String("command", cmd.Binary))
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The command ran and returned non-zero. Not an
			// infrastructure failure.
			result.ExitCode = exitErr.ExitCode()
			r.logger.Debug("command exited non-zero",
				zap.String("command", cmd.Binary),
				zap.Int("code", result.ExitCode))
		} else {
			result.Err = err
			r.logger.Error("command failed to run",
				zap.String("command", cmd.Binary),
				zap.Error(err))
			return result, nil
		}
	}

	r.logger.Debug("command completed",
		zap.String("command", cmd.Binary),
		zap.Int("code", result.ExitCode),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// buildEnv assembles the child environment. nil keeps os/exec's inherit
// behavior; variables absent from the parent are never synthesized, so a
// child can observe true absence.
func buildEnv(cmd Command) []string {
	if cmd.InheritEnv && len(cmd.Env) == 0 {
		return nil
	}

	env := make([]string, 0, len(cmd.Env)+8)
	if cmd.InheritEnv {
		env = append(env, os.Environ()...)
	}

	keys := make([]string, 0, len(cmd.Env))
	for k := range cmd.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+cmd.Env[k])
	}
	return env
}

// limitedWriter caps total bytes written through it while reporting full
// writes upstream, so the child never sees a short-write error.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
