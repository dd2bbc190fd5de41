package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"firstpull/internal/config"
)

// RecreateWorkspace wipes the run workspace and rebuilds its fixed layout.
// Any prior instance is overwritten. The scraped and output directories
// live outside the workspace and are only ensured, never wiped.
func (p *Provisioner) RecreateWorkspace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	root := p.cfg.WorkspacePath()
	p.mu.Lock()
	p.setupStarted = time.Now()
	p.mu.Unlock()
	p.setState(StateSetup)

	p.logger.Info("recreating run workspace", zap.String("path", root))

	if err := os.RemoveAll(root); err != nil {
		return p.setError(fmt.Errorf("remove prior workspace: %w", err))
	}

	for _, dir := range []string{
		filepath.Join(root, "browser", "engine"),
		filepath.Join(root, "browser", "profile"),
		filepath.Join(root, "manifest"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return p.setError(fmt.Errorf("create workspace dir %s: %w", dir, err))
		}
	}

	for _, dir := range []string{p.cfg.ScrapedPath(), p.cfg.OutputPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return p.setError(fmt.Errorf("create data dir %s: %w", dir, err))
		}
	}

	return nil
}

// EngineDir returns the managed engine download directory.
func (p *Provisioner) EngineDir() string {
	return EngineDir(p.cfg)
}

// ProfileDir returns the browser profile directory.
func (p *Provisioner) ProfileDir() string {
	return ProfileDir(p.cfg)
}

// EngineDir returns the managed engine download directory for a workspace.
func EngineDir(cfg *config.Config) string {
	return filepath.Join(cfg.WorkspacePath(), "browser", "engine")
}

// ProfileDir returns the browser profile directory for a workspace.
func ProfileDir(cfg *config.Config) string {
	return filepath.Join(cfg.WorkspacePath(), "browser", "profile")
}

// MarkReady finalizes provisioning after the mandatory steps.
func (p *Provisioner) MarkReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateReady
	p.setupCompleted = time.Now()
}

// SetupDuration reports how long provisioning took.
func (p *Provisioner) SetupDuration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.setupCompleted.IsZero() {
		return 0
	}
	return p.setupCompleted.Sub(p.setupStarted)
}
