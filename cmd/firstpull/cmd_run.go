// This file contains the sequencer command: the full provision, fetch,
// convert pipeline.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"firstpull/internal/ledger"
	"firstpull/internal/pipeline"
	"firstpull/internal/proc"
	"firstpull/internal/provision"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Recreate the workspace, fetch every state report, convert them",
	Long: `Runs the whole pipeline in order: recreate the run workspace, resolve
a browser engine, install the state manifest, best-effort install engine
binaries, then execute the fetch and convert payloads as subprocesses.

The first failing mandatory step aborts the run and its exit code becomes
the process exit code. A failed engine install is tolerated: binaries may
already be present from a prior run.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate own binary: %w", err)
	}

	prov := provision.New(cfg, logger)
	runner := proc.NewRunner(proc.DefaultOptions(), logger)

	seq := pipeline.NewSequencer(logger)
	seq.Append(provisionSteps(prov)...)
	seq.Append(
		pipeline.NewCommandStep("fetch reports", runner, selfCommand(self, "fetch")),
		pipeline.NewCommandStep("convert reports", runner, selfCommand(self, "convert")),
	)

	if store, err := ledger.Open(cfg.LedgerPath()); err != nil {
		logger.Warn("run ledger unavailable", zap.Error(err))
	} else {
		defer store.Close()
		seq.WithRecorder(store)
	}

	report, runErr := seq.Run(ctx)
	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderRunReport(report))
	if runErr == nil {
		fmt.Fprint(out, renderOutputs(cfg))
	}
	return runErr
}

// provisionSteps builds the four setup steps shared by run and provision.
// Engine install is best effort: binaries may survive from a prior run, and
// the fetcher fails with its own exit code when no engine is usable.
func provisionSteps(prov *provision.Provisioner) []pipeline.Step {
	return []pipeline.Step{
		pipeline.NewStep("recreate workspace", prov.RecreateWorkspace),
		pipeline.NewStep("resolve browser engine", prov.ResolveEngine),
		pipeline.NewStep("install state manifest", prov.InstallManifest),
		pipeline.NewBestEffortStep("install browser engine", func(ctx context.Context) error {
			defer prov.MarkReady()
			return prov.InstallEngine(ctx)
		}),
	}
}

// selfCommand reruns this binary as a payload subprocess. The child inherits
// the parent environment, so SHOW_BROWSER reaches the fetcher exactly as the
// operator set it, or not at all.
func selfCommand(self, sub string) proc.Command {
	cmdArgs := []string{sub, "--config", cfgPath}
	if dataRoot != "" {
		cmdArgs = append(cmdArgs, "--data-root", dataRoot)
	}
	if verbose {
		cmdArgs = append(cmdArgs, "--verbose")
	}
	return proc.Command{
		Binary:     self,
		Args:       cmdArgs,
		InheritEnv: true,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
}
