// This file contains the convert command: the format converter payload.
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"firstpull/internal/convert"
)

var convertWatch bool

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert downloaded workbooks to CSV",
	Long: `Sweeps the scraped directory and writes one year-by-month CSV per
workbook into the output directory. Workbooks without the expected table
are skipped with a warning; an unreadable workbook fails the command.

With --watch the command keeps running and converts workbooks as they
arrive, which pairs with a fetch running in another terminal.`,
	Args: cobra.NoArgs,
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	conv := convert.New(cfg, logger)

	if convertWatch {
		w, err := convert.NewWatcher(conv)
		if err != nil {
			return err
		}
		if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	summary, err := conv.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderConvertSummary(summary))
	return nil
}
