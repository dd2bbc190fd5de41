// This file renders run reports and summaries for the terminal.
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"firstpull/internal/config"
	"firstpull/internal/convert"
	"firstpull/internal/fetch"
	"firstpull/internal/ledger"
	"firstpull/internal/pipeline"
	"firstpull/internal/provision"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")) // Green
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBC02D")) // Amber
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E53935")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7A8699")) // Grey
)

var (
	okMark   = okStyle.Render("✓")
	warnMark = warnStyle.Render("!")
	failMark = failStyle.Render("✗")
)

// statusLabel pads before styling so the ANSI escapes do not skew the
// column width.
func statusLabel(s pipeline.Status) string {
	padded := fmt.Sprintf("%-9s", string(s))
	switch s {
	case pipeline.StatusOK:
		return okStyle.Render(padded)
	case pipeline.StatusTolerated:
		return warnStyle.Render(padded)
	case pipeline.StatusFailed:
		return failStyle.Render(padded)
	default:
		return mutedStyle.Render(padded)
	}
}

func renderRunReport(report *pipeline.RunReport) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Run " + shortID(report.ID)))
	b.WriteString("\n")
	writeStepLines(&b, report.Steps)
	b.WriteString("\n")
	if report.ExitCode == 0 {
		fmt.Fprintf(&b, "%s Run complete in %s\n",
			okMark, fmtDuration(report.FinishedAt.Sub(report.StartedAt)))
	} else {
		fmt.Fprintf(&b, "%s Run failed with exit code %d\n", failMark, report.ExitCode)
	}
	return b.String()
}

func writeStepLines(b *strings.Builder, steps []pipeline.StepReport) {
	for i, step := range steps {
		fmt.Fprintf(b, "  %d. %-26s %s %10s\n",
			i+1, step.Name, statusLabel(step.Status), fmtDuration(step.Duration))
		if step.Err != "" {
			fmt.Fprintf(b, "       %s\n", mutedStyle.Render(step.Err))
		}
	}
}

func renderOutputs(cfg *config.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  Workbooks:  %s\n", cfg.ScrapedPath())
	fmt.Fprintf(&b, "  CSV output: %s\n", cfg.OutputPath())
	return b.String()
}

func renderWorkspace(cfg *config.Config, prov *provision.Provisioner) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  Workspace: %s\n", cfg.WorkspacePath())
	if bin := prov.EnginePath(); bin != "" {
		fmt.Fprintf(&b, "  Engine:    %s\n", bin)
	} else {
		fmt.Fprintf(&b, "  Engine:    %s\n",
			mutedStyle.Render("none resolved, fetch needs a browser"))
	}
	return b.String()
}

func renderFetchSummary(s *fetch.Summary) string {
	var b strings.Builder
	if len(s.Failed) == 0 {
		fmt.Fprintf(&b, "%s %d of %d state reports fetched\n", okMark, s.Succeeded, s.Total)
		return b.String()
	}
	fmt.Fprintf(&b, "%s %d of %d state reports fetched, %d failed\n",
		warnMark, s.Succeeded, s.Total, len(s.Failed))
	for _, name := range s.Failed {
		fmt.Fprintf(&b, "    %s %s\n", failMark, name)
	}
	return b.String()
}

func renderConvertSummary(s *convert.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d of %d workbooks converted\n", okMark, s.Converted, s.Total)
	for _, name := range s.Skipped {
		fmt.Fprintf(&b, "    %s %s skipped, no report table\n", warnMark, name)
	}
	return b.String()
}

func renderStatus(run *ledger.RunSummary, fetches []fetch.Record) string {
	var b strings.Builder
	if run == nil {
		b.WriteString("No runs recorded yet.\n")
	} else {
		b.WriteString(titleStyle.Render(
			fmt.Sprintf("Run %s  started %s", shortID(run.ID), run.StartedAt.Format("2006-01-02 15:04:05"))))
		b.WriteString("\n")
		writeStepLines(&b, run.Steps)
		switch {
		case !run.Finished:
			fmt.Fprintf(&b, "  %s\n", warnStyle.Render("still running, or aborted without a record"))
		case run.ExitCode == 0:
			fmt.Fprintf(&b, "  %s\n", okStyle.Render("succeeded"))
		default:
			fmt.Fprintf(&b, "  %s\n", failStyle.Render(fmt.Sprintf("failed with exit code %d", run.ExitCode)))
		}
	}

	if len(fetches) > 0 {
		b.WriteString("\nRecent fetches:\n")
		for _, rec := range fetches {
			if rec.Error != "" {
				fmt.Fprintf(&b, "  %s %-22s %s\n", failMark, rec.StateName, mutedStyle.Render(rec.Error))
			} else {
				fmt.Fprintf(&b, "  %s %-22s %9s  %s\n",
					okMark, rec.StateName, fmtBytes(rec.Bytes), fmtDuration(rec.Duration))
			}
		}
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func fmtDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func fmtBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
