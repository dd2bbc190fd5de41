package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"firstpull/internal/first"
)

// InstallManifest validates the state manifest and installs the validated
// copy into the workspace for the fetcher to consume. Missing, empty,
// malformed, or stateless manifests are fatal.
func (p *Provisioner) InstallManifest(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src := p.cfg.ManifestPath()
	states, err := first.LoadStates(src)
	if err != nil {
		return p.setError(err)
	}

	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return p.setError(fmt.Errorf("encode state manifest: %w", err))
	}
	data = append(data, '\n')

	dest := p.cfg.InstalledManifestPath()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return p.setError(fmt.Errorf("create manifest dir: %w", err))
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return p.setError(fmt.Errorf("install state manifest: %w", err))
	}

	p.logger.Info("state manifest installed",
		zap.String("source", src),
		zap.String("dest", dest),
		zap.Int("states", len(states)))

	return nil
}
