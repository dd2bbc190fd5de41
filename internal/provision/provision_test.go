package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firstpull/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataRoot = t.TempDir()
	return cfg
}

func writeStateManifest(t *testing.T, cfg *config.Config, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(cfg.ManifestPath(), []byte(content), 0644))
}

func TestRecreateWorkspace_Layout(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil)

	require.NoError(t, p.RecreateWorkspace(context.Background()))

	for _, dir := range []string{
		p.EngineDir(),
		p.ProfileDir(),
		filepath.Join(cfg.WorkspacePath(), "manifest"),
		cfg.ScrapedPath(),
		cfg.OutputPath(),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, "expected %s", dir)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, StateSetup, p.State())
}

func TestRecreateWorkspace_OverwritesPriorInstance(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil)

	require.NoError(t, p.RecreateWorkspace(context.Background()))

	stale := filepath.Join(cfg.WorkspacePath(), "manifest", "stale.json")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	require.NoError(t, p.RecreateWorkspace(context.Background()))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale workspace content must be wiped")
}

func TestRecreateWorkspace_KeepsScrapedAndOutput(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil)

	require.NoError(t, p.RecreateWorkspace(context.Background()))

	kept := filepath.Join(cfg.ScrapedPath(), "Alabama-dui-data.xlsx")
	require.NoError(t, os.WriteFile(kept, []byte("workbook"), 0644))

	require.NoError(t, p.RecreateWorkspace(context.Background()))

	_, err := os.Stat(kept)
	assert.NoError(t, err, "scraped artifacts survive workspace recreation")
}

func TestInstallManifest(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil)
	require.NoError(t, p.RecreateWorkspace(context.Background()))
	writeStateManifest(t, cfg, `[{"Id": 1, "StateName": "Alabama"}]`)

	require.NoError(t, p.InstallManifest(context.Background()))

	data, err := os.ReadFile(cfg.InstalledManifestPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"StateName": "Alabama"`)
}

func TestInstallManifest_MissingIsFatal(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil)
	require.NoError(t, p.RecreateWorkspace(context.Background()))

	err := p.InstallManifest(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, p.State())
	assert.Equal(t, err, p.LastError())
}

func TestInstallManifest_EmptyIsFatal(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil)
	require.NoError(t, p.RecreateWorkspace(context.Background()))
	writeStateManifest(t, cfg, "   ")

	assert.Error(t, p.InstallManifest(context.Background()))
}

func TestInstallManifest_NoStatesIsFatal(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil)
	require.NoError(t, p.RecreateWorkspace(context.Background()))
	writeStateManifest(t, cfg, "[]")

	assert.Error(t, p.InstallManifest(context.Background()))
}

func TestResolveEngine_ConfiguredPath(t *testing.T) {
	cfg := testConfig(t)
	bin := filepath.Join(t.TempDir(), "chromium")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))
	cfg.BrowserPath = bin

	p := New(cfg, nil)
	require.NoError(t, p.RecreateWorkspace(context.Background()))
	require.NoError(t, p.ResolveEngine(context.Background()))

	assert.Equal(t, bin, p.EnginePath())
}

func TestResolveEngine_ConfiguredPathMissing(t *testing.T) {
	cfg := testConfig(t)
	cfg.BrowserPath = filepath.Join(t.TempDir(), "no-such-browser")

	p := New(cfg, nil)
	require.NoError(t, p.RecreateWorkspace(context.Background()))

	err := p.ResolveEngine(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, p.State())
}

func TestInstallEngine_SkipsWhenResolved(t *testing.T) {
	cfg := testConfig(t)
	bin := filepath.Join(t.TempDir(), "chromium")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))
	cfg.BrowserPath = bin

	p := New(cfg, nil)
	require.NoError(t, p.RecreateWorkspace(context.Background()))
	require.NoError(t, p.ResolveEngine(context.Background()))

	// No download may happen; with a resolved binary this is a no-op.
	require.NoError(t, p.InstallEngine(context.Background()))
	assert.Equal(t, bin, p.EnginePath())
}

func TestMarkReady(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil)

	require.NoError(t, p.RecreateWorkspace(context.Background()))
	p.MarkReady()

	assert.Equal(t, StateReady, p.State())
	assert.GreaterOrEqual(t, p.SetupDuration().Nanoseconds(), int64(0))
}

func TestRecreateWorkspace_CancelledContext(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.RecreateWorkspace(ctx), context.Canceled)
}
