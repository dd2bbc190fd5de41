// This file contains the provision command: workspace setup without the
// fetch and convert payloads.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"firstpull/internal/pipeline"
	"firstpull/internal/provision"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Recreate the workspace and install the engine and manifest",
	Long: `Runs the setup steps only: recreate the run workspace, resolve a
browser engine, install the state manifest, best-effort install engine
binaries. Useful for debugging setup without touching the remote site.`,
	Args: cobra.NoArgs,
	RunE: runProvision,
}

func runProvision(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	prov := provision.New(cfg, logger)
	seq := pipeline.NewSequencer(logger)
	seq.Append(provisionSteps(prov)...)

	report, runErr := seq.Run(ctx)
	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderRunReport(report))
	if runErr == nil {
		fmt.Fprint(out, renderWorkspace(cfg, prov))
	}
	return runErr
}
