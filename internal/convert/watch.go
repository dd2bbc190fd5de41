package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settleDelay is how long a workbook must sit unchanged before conversion.
// Downloads land in a single write, the delay guards partially copied files.
const settleDelay = 500 * time.Millisecond

// Watcher converts workbooks as they appear in the scraped directory, so a
// long fetch can stream CSVs instead of waiting for the full sweep.
type Watcher struct {
	conv    *Converter
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	pending map[string]time.Time
}

// NewWatcher builds a watcher over the converter's scraped directory.
func NewWatcher(conv *Converter) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		conv:    conv,
		watcher: fsw,
		logger:  conv.logger,
		pending: make(map[string]time.Time),
	}, nil
}

// Watch runs an initial sweep, then blocks converting workbooks as they
// settle, until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()

	scraped := w.conv.cfg.ScrapedPath()
	for _, dir := range []string{scraped, w.conv.cfg.OutputPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := w.watcher.Add(scraped); err != nil {
		return fmt.Errorf("watch %s: %w", scraped, err)
	}

	if _, err := w.conv.Run(ctx); err != nil {
		return err
	}

	w.logger.Info("watching for workbooks", zap.String("dir", scraped))

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", zap.Error(err))

		case <-ticker.C:
			w.convertSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(strings.ToLower(event.Name), ".xlsx") {
		return
	}
	switch {
	case event.Op&fsnotify.Create != 0, event.Op&fsnotify.Write != 0:
		w.pending[event.Name] = time.Now()
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		delete(w.pending, event.Name)
	}
}

func (w *Watcher) convertSettled() {
	now := time.Now()
	for path, seen := range w.pending {
		if now.Sub(seen) < settleDelay {
			continue
		}
		delete(w.pending, path)

		if _, err := os.Stat(path); err != nil {
			continue
		}

		out, err := w.conv.ConvertFile(path)
		if err != nil {
			w.logger.Warn("workbook not converted",
				zap.String("file", filepath.Base(path)),
				zap.Error(err))
			continue
		}
		w.logger.Info("workbook converted",
			zap.String("file", filepath.Base(path)),
			zap.String("csv", filepath.Base(out)))
	}
}
