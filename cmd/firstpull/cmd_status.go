// This file contains the status command: latest run and recent fetches
// from the ledger.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"firstpull/internal/ledger"
)

var statusFetches int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest pipeline run and recent fetches",
	Args:  cobra.NoArgs,
	RunE:  showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	run, err := store.LatestRun()
	if err != nil {
		return err
	}
	fetches, err := store.RecentFetches(statusFetches)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderStatus(run, fetches))
	return nil
}
