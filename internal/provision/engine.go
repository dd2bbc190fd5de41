package provision

import (
	"context"
	"fmt"
	"os"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/utils"
	"go.uber.org/zap"

	"firstpull/internal/config"
)

// ResolveEngine decides which browser binary the fetcher will use: an
// explicitly configured path, a browser already on the system, or the
// managed download (left to InstallEngine). Missing binaries are not an
// error here; a workspace that cannot hold the engine is.
func (p *Provisioner) ResolveEngine(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if bin := p.cfg.BrowserPath; bin != "" {
		if _, err := os.Stat(bin); err != nil {
			return p.setError(fmt.Errorf("configured browser %s: %w", bin, err))
		}
		p.setEnginePath(bin)
		p.logger.Info("using configured browser", zap.String("bin", bin))
		return nil
	}

	if bin, has := launcher.LookPath(); has {
		p.setEnginePath(bin)
		p.logger.Info("using system browser", zap.String("bin", bin))
		return nil
	}

	managed := p.managedBrowser(ctx)
	if err := managed.Validate(); err == nil {
		bin := managed.BinPath()
		p.setEnginePath(bin)
		p.logger.Info("using managed browser from a prior run", zap.String("bin", bin))
		return nil
	}

	p.logger.Info("no browser available yet, engine install will download one",
		zap.String("dir", p.EngineDir()))
	return nil
}

// InstallEngine downloads the managed browser. The pipeline runs it as the
// best-effort step: a failure is tolerated because a binary may already be
// present from a prior run.
func (p *Provisioner) InstallEngine(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if bin := p.EnginePath(); bin != "" {
		p.logger.Info("browser already resolved, skipping engine download",
			zap.String("bin", bin))
		return nil
	}

	p.logger.Info("downloading browser engine", zap.String("dir", p.EngineDir()))

	bin, err := p.managedBrowser(ctx).Get()
	if err != nil {
		return fmt.Errorf("download browser engine: %w", err)
	}

	p.setEnginePath(bin)
	p.logger.Info("browser engine installed", zap.String("bin", bin))
	return nil
}

func (p *Provisioner) managedBrowser(ctx context.Context) *launcher.Browser {
	b := launcher.NewBrowser()
	b.Context = ctx
	b.RootDir = p.EngineDir()
	b.Logger = utils.LoggerQuiet
	return b
}

// Locate finds the browser binary a fresh process should launch, resolving
// in the same order ResolveEngine does: configured path, system browser,
// managed download from a prior run. The boolean reports whether anything
// was found.
func Locate(cfg *config.Config) (string, bool) {
	if bin := cfg.BrowserPath; bin != "" {
		if _, err := os.Stat(bin); err == nil {
			return bin, true
		}
	}
	if bin, has := launcher.LookPath(); has {
		return bin, true
	}
	b := launcher.NewBrowser()
	b.RootDir = EngineDir(cfg)
	b.Logger = utils.LoggerQuiet
	if err := b.Validate(); err == nil {
		return b.BinPath(), true
	}
	return "", false
}
