// This file contains the fetch command: the report fetcher payload.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"firstpull/internal/fetch"
	"firstpull/internal/ledger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download one impaired-driving workbook per state",
	Long: `Drives a real browser session against the FIRST query tool and posts
one query per state in the manifest, saving each result workbook under the
scraped directory.

Individual state failures are logged and skipped; the command only fails
when the session itself cannot be set up. Set SHOW_BROWSER=1 to watch the
browser window.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	f := fetch.New(cfg, logger)
	if store, err := ledger.Open(cfg.LedgerPath()); err != nil {
		logger.Warn("fetch ledger unavailable", zap.Error(err))
	} else {
		defer store.Close()
		f.WithRecorder(store)
	}

	summary, err := f.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderFetchSummary(summary))
	return nil
}
