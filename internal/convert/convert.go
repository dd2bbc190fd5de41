// Package convert turns scraped FIRST workbooks into per-state CSV files:
// one year-by-month grid per state, months as columns, a trailing total.
package convert

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"firstpull/internal/config"
)

// Summary aggregates one conversion sweep.
type Summary struct {
	Total     int
	Converted int
	Skipped   []string
}

// Converter sweeps the scraped directory and writes CSVs to the output
// directory.
type Converter struct {
	cfg    *config.Config
	logger *zap.Logger
}

// New builds a converter.
func New(cfg *config.Config, logger *zap.Logger) *Converter {
	return &Converter{cfg: cfg, logger: logger}
}

// Run converts every workbook in the scraped directory. Sheets without the
// expected table are skipped with a warning; a workbook that cannot be read
// at all fails the run.
func (c *Converter) Run(ctx context.Context) (*Summary, error) {
	files, err := filepath.Glob(filepath.Join(c.cfg.ScrapedPath(), "*.xlsx"))
	if err != nil {
		return nil, fmt.Errorf("scan scraped dir: %w", err)
	}
	if len(files) == 0 {
		c.logger.Info("no workbooks found", zap.String("dir", c.cfg.ScrapedPath()))
		return &Summary{}, nil
	}

	if err := os.MkdirAll(c.cfg.OutputPath(), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	workers := c.cfg.Convert.Workers
	if workers <= 0 {
		workers = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	summary := &Summary{Total: len(files)}

	for _, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			out, err := c.ConvertFile(file)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrNoMonthHeader), errors.Is(err, ErrNoDataRows):
				summary.Skipped = append(summary.Skipped, filepath.Base(file))
				c.logger.Warn("workbook skipped",
					zap.String("file", filepath.Base(file)),
					zap.Error(err))
				return nil
			case err != nil:
				return fmt.Errorf("%s: %w", filepath.Base(file), err)
			}

			summary.Converted++
			c.logger.Info("workbook converted",
				zap.String("file", filepath.Base(file)),
				zap.String("csv", filepath.Base(out)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(summary.Skipped)
	c.logger.Info("conversion finished",
		zap.Int("total", summary.Total),
		zap.Int("converted", summary.Converted),
		zap.Int("skipped", len(summary.Skipped)))
	return summary, nil
}

// ConvertFile extracts one workbook's table and writes its CSV next to the
// other outputs. The CSV path is returned.
func (c *Converter) ConvertFile(path string) (string, error) {
	rows, err := ReadSheet(path)
	if err != nil {
		return "", err
	}

	table, err := ExtractTable(rows)
	if err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(c.cfg.OutputPath(), stem+".csv")
	if err := writeCSV(out, table); err != nil {
		return "", err
	}
	return out, nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader()); err != nil {
		f.Close()
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write csv rows: %w", err)
	}
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
