// Package fetch pulls impaired-driving crash workbooks from the NHTSA FIRST
// query service. A real browser session bootstraps cookies and hosts the
// result DOM; the queries themselves run over plain HTTP.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"firstpull/internal/config"
	"firstpull/internal/first"
	"firstpull/internal/provision"
)

// pageHost is the browser surface the fetch loop drives.
type pageHost interface {
	SetHTML(ctx context.Context, html string) error
	WaitDownloadLink(ctx context.Context, timeout time.Duration) (string, error)
}

// jobClient is the HTTP surface the fetch loop drives.
type jobClient interface {
	PostQuery(ctx context.Context, q first.Query) (string, error)
	SubmitProgressForm(ctx context.Context, form *ProgressForm) (string, error)
	Download(ctx context.Context, fileURL string) ([]byte, error)
}

// Record describes one state's fetch outcome.
type Record struct {
	StateID   int
	StateName string
	File      string
	Bytes     int64
	Duration  time.Duration
	Error     string
	FetchedAt time.Time
}

// Recorder persists per-state outcomes. Recording failures are logged,
// never fatal.
type Recorder interface {
	RecordFetch(ctx context.Context, rec Record) error
}

// Summary aggregates a fetch run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    []string
}

// Fetcher downloads one workbook per state in the manifest.
type Fetcher struct {
	cfg      *config.Config
	logger   *zap.Logger
	recorder Recorder
}

// New builds a fetcher.
func New(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{cfg: cfg, logger: logger}
}

// WithRecorder attaches an outcome recorder.
func (f *Fetcher) WithRecorder(rec Recorder) *Fetcher {
	f.recorder = rec
	return f
}

// Run drives the full fetch: load the state manifest, start the browser,
// hand its cookies to the HTTP client, then query every state in turn.
// Setup failures are fatal; a single state's failure is logged and the
// loop moves on.
func (f *Fetcher) Run(ctx context.Context) (*Summary, error) {
	states, err := f.loadStates()
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{f.cfg.ScrapedPath(), provision.ProfileDir(f.cfg)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	bin, found := provision.Locate(f.cfg)
	if found {
		f.logger.Info("launching browser", zap.String("bin", bin))
	} else {
		f.logger.Info("no browser resolved, launcher will fetch one")
	}

	sess, err := NewSession(ctx, SessionOptions{
		Bin:               bin,
		Headless:          !f.cfg.ShowBrowser,
		ProfileDir:        provision.ProfileDir(f.cfg),
		NavigationTimeout: f.cfg.GetNavigationTimeout(),
		Logger:            f.logger,
	})
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if err := sess.OpenQueryPage(ctx); err != nil {
		return nil, err
	}

	client, err := NewClient(ctx, sess, ClientOptions{
		RequestTimeout:  f.cfg.GetRequestTimeout(),
		DownloadTimeout: f.cfg.GetDownloadTimeout(),
		Logger:          f.logger,
	})
	if err != nil {
		return nil, err
	}

	return f.fetchAll(ctx, sess, client, states)
}

func (f *Fetcher) fetchAll(ctx context.Context, host pageHost, client jobClient, states []first.State) (*Summary, error) {
	summary := &Summary{Total: len(states)}
	pause := f.cfg.GetStatePause()

	for i, state := range states {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		started := time.Now()
		f.logger.Info("fetching state report",
			zap.String("state", state.Name),
			zap.Int("id", state.ID),
			zap.Int("index", i+1),
			zap.Int("total", len(states)))

		file, size, err := f.fetchState(ctx, host, client, state)

		rec := Record{
			StateID:   state.ID,
			StateName: state.Name,
			File:      file,
			Bytes:     size,
			Duration:  time.Since(started),
			FetchedAt: started,
		}
		if err != nil {
			rec.Error = err.Error()
			summary.Failed = append(summary.Failed, state.Name)
			f.logger.Error("state fetch failed",
				zap.String("state", state.Name),
				zap.Error(err))
		} else {
			summary.Succeeded++
			f.logger.Info("state report saved",
				zap.String("state", state.Name),
				zap.String("file", file),
				zap.Int64("bytes", size))
		}
		f.record(ctx, rec)

		if i < len(states)-1 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
			}
		}
	}

	f.logger.Info("fetch finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", len(summary.Failed)))
	return summary, nil
}

// fetchState runs one state's query end to end and returns the saved file
// name and its size.
func (f *Fetcher) fetchState(ctx context.Context, host pageHost, client jobClient, state first.State) (string, int64, error) {
	page, err := client.PostQuery(ctx, first.NewQuery(state.ID))
	if err != nil {
		return "", 0, err
	}

	form, err := ParseProgressForm(page)
	if err != nil {
		return "", 0, fmt.Errorf("parse response page: %w", err)
	}
	if form != nil {
		page, err = client.SubmitProgressForm(ctx, form)
		if err != nil {
			return "", 0, err
		}
	}

	if err := host.SetHTML(ctx, page); err != nil {
		return "", 0, err
	}

	href, err := host.WaitDownloadLink(ctx, f.cfg.GetLinkTimeout())
	if err != nil {
		return "", 0, err
	}

	fileURL := first.ResolveRef(href)
	f.logger.Debug("resolved download link",
		zap.String("state", state.Name),
		zap.String("url", fileURL))

	data, err := client.Download(ctx, fileURL)
	if err != nil {
		return "", 0, err
	}

	if err := verifyWorkbook(data); err != nil {
		return "", 0, fmt.Errorf("downloaded file is not a workbook: %w", err)
	}

	name := state.ReportFileName()
	path := filepath.Join(f.cfg.ScrapedPath(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", 0, fmt.Errorf("write report: %w", err)
	}

	return name, int64(len(data)), nil
}

// verifyWorkbook rejects downloads that are not real spreadsheets, such as
// an error page served under the report's name.
func verifyWorkbook(data []byte) error {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return wb.Close()
}

// loadStates prefers the manifest installed into the run workspace and
// falls back to the repo copy so a standalone fetch still works.
func (f *Fetcher) loadStates() ([]first.State, error) {
	installed := f.cfg.InstalledManifestPath()
	if _, err := os.Stat(installed); err == nil {
		return first.LoadStates(installed)
	}
	return first.LoadStates(f.cfg.ManifestPath())
}

func (f *Fetcher) record(ctx context.Context, rec Record) {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.RecordFetch(ctx, rec); err != nil {
		f.logger.Debug("fetch record not persisted", zap.Error(err))
	}
}
