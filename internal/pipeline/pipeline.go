// Package pipeline runs an ordered list of provisioning and execution steps,
// stopping at the first fatal failure and propagating its exit code. One
// step class is tolerated: a best-effort step logs its failure and the run
// continues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"firstpull/internal/proc"
)

// Status classifies a step outcome in the run report.
type Status string

const (
	StatusOK        Status = "ok"
	StatusFailed    Status = "failed"
	StatusTolerated Status = "tolerated"
	StatusSkipped   Status = "skipped"
)

// StepResult is what a step yields: an exit code and the error behind it.
// Subprocess steps carry the child's real exit code; in-process steps yield
// 1 on failure.
type StepResult struct {
	Code int
	Err  error
}

// Step is one unit of the pipeline.
type Step interface {
	Name() string
	BestEffort() bool
	Run(ctx context.Context) StepResult
}

// StepError reports the first fatal step failure. The CLI maps Code to the
// process exit status.
type StepError struct {
	Step string
	Code int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed with exit code %d", e.Step, e.Code)
}

func (e *StepError) Unwrap() error { return e.Err }

// FuncStep wraps in-process work as a pipeline step.
type FuncStep struct {
	name       string
	bestEffort bool
	fn         func(ctx context.Context) error
}

// NewStep creates a fatal in-process step.
func NewStep(name string, fn func(ctx context.Context) error) *FuncStep {
	return &FuncStep{name: name, fn: fn}
}

// NewBestEffortStep creates a step whose failure is tolerated.
func NewBestEffortStep(name string, fn func(ctx context.Context) error) *FuncStep {
	return &FuncStep{name: name, bestEffort: true, fn: fn}
}

func (s *FuncStep) Name() string     { return s.name }
func (s *FuncStep) BestEffort() bool { return s.bestEffort }

func (s *FuncStep) Run(ctx context.Context) StepResult {
	if err := s.fn(ctx); err != nil {
		return StepResult{Code: 1, Err: err}
	}
	return StepResult{}
}

// CommandStep runs a subprocess through a proc.Runner and surfaces the
// child's exit code unchanged.
type CommandStep struct {
	name       string
	bestEffort bool
	cmd        proc.Command
	runner     proc.Runner
}

// NewCommandStep creates a fatal subprocess step.
func NewCommandStep(name string, runner proc.Runner, cmd proc.Command) *CommandStep {
	return &CommandStep{name: name, cmd: cmd, runner: runner}
}

// NewBestEffortCommandStep creates a subprocess step whose failure is
// tolerated.
func NewBestEffortCommandStep(name string, runner proc.Runner, cmd proc.Command) *CommandStep {
	return &CommandStep{name: name, bestEffort: true, cmd: cmd, runner: runner}
}

func (s *CommandStep) Name() string     { return s.name }
func (s *CommandStep) BestEffort() bool { return s.bestEffort }

func (s *CommandStep) Run(ctx context.Context) StepResult {
	result, err := s.runner.Run(ctx, s.cmd)
	if err != nil {
		return StepResult{Code: 1, Err: err}
	}
	if result.Err != nil {
		return StepResult{Code: 1, Err: result.Err}
	}
	if result.Killed {
		return StepResult{Code: 1, Err: errors.New(result.KillReason)}
	}
	if result.ExitCode != 0 {
		return StepResult{
			Code: result.ExitCode,
			Err:  fmt.Errorf("%s exited with code %d", s.cmd.Binary, result.ExitCode),
		}
	}
	return StepResult{}
}

// StepReport records one step outcome.
type StepReport struct {
	Name     string
	Status   Status
	Code     int
	Duration time.Duration
	Err      string
}

// RunReport records a whole pipeline run.
type RunReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	Steps      []StepReport
}

// Recorder receives run progress. Implementations must tolerate being
// called from a single goroutine in step order; errors are logged and
// ignored, recording never affects control flow.
type Recorder interface {
	RunStarted(runID string, at time.Time) error
	StepFinished(runID string, seq int, step StepReport) error
	RunFinished(runID string, at time.Time, exitCode int) error
}

// Sequencer executes steps strictly in order, one at a time.
type Sequencer struct {
	steps    []Step
	logger   *zap.Logger
	recorder Recorder
}

// NewSequencer creates an empty sequencer.
func NewSequencer(logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{logger: logger}
}

// Append adds steps to the end of the pipeline.
func (s *Sequencer) Append(steps ...Step) *Sequencer {
	s.steps = append(s.steps, steps...)
	return s
}

// WithRecorder attaches a run recorder.
func (s *Sequencer) WithRecorder(r Recorder) *Sequencer {
	s.recorder = r
	return s
}

// Run executes the pipeline. On the first fatal failure it stops and
// returns a *StepError carrying that step's exit code; remaining steps are
// reported as skipped. Context cancellation aborts with the context error.
func (s *Sequencer) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Steps:     make([]StepReport, 0, len(s.steps)),
	}
	s.record(func(r Recorder) error { return r.RunStarted(report.ID, report.StartedAt) })

	var runErr error
	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			s.skipFrom(report, i)
			runErr = err
			break
		}

		s.logger.Info("step starting",
			zap.Int("seq", i+1),
			zap.String("step", step.Name()))

		started := time.Now()
		result := step.Run(ctx)
		rep := StepReport{
			Name:     step.Name(),
			Code:     result.Code,
			Duration: time.Since(started),
		}
		if result.Err != nil {
			rep.Err = result.Err.Error()
		}

		switch {
		case result.Err == nil && result.Code == 0:
			rep.Status = StatusOK
			s.logger.Info("step finished",
				zap.Int("seq", i+1),
				zap.String("step", step.Name()),
				zap.Duration("duration", rep.Duration))
		case step.BestEffort():
			rep.Status = StatusTolerated
			s.logger.Warn("step failed, continuing",
				zap.Int("seq", i+1),
				zap.String("step", step.Name()),
				zap.Int("code", result.Code),
				zap.Error(result.Err))
		default:
			rep.Status = StatusFailed
			s.logger.Error("step failed",
				zap.Int("seq", i+1),
				zap.String("step", step.Name()),
				zap.Int("code", result.Code),
				zap.Error(result.Err))
		}

		report.Steps = append(report.Steps, rep)
		seq := i + 1
		s.record(func(r Recorder) error { return r.StepFinished(report.ID, seq, rep) })

		if rep.Status == StatusFailed {
			// Cancellation during a step surfaces as the run being
			// aborted, not as that step's failure.
			if err := ctx.Err(); err != nil {
				runErr = err
			} else {
				runErr = &StepError{Step: step.Name(), Code: result.Code, Err: result.Err}
				report.ExitCode = result.Code
			}
			s.skipFrom(report, i+1)
			break
		}
	}

	report.FinishedAt = time.Now()
	if runErr != nil && report.ExitCode == 0 {
		report.ExitCode = 1
	}
	s.record(func(r Recorder) error { return r.RunFinished(report.ID, report.FinishedAt, report.ExitCode) })

	return report, runErr
}

func (s *Sequencer) skipFrom(report *RunReport, idx int) {
	for _, step := range s.steps[idx:] {
		report.Steps = append(report.Steps, StepReport{
			Name:   step.Name(),
			Status: StatusSkipped,
		})
	}
}

func (s *Sequencer) record(fn func(Recorder) error) {
	if s.recorder == nil {
		return
	}
	if err := fn(s.recorder); err != nil {
		s.logger.Debug("ledger write failed", zap.Error(err))
	}
}
