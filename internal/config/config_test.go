package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.DataRoot)
	assert.Equal(t, "scraped", cfg.ScrapedDir)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, "state-list.json", cfg.Fetch.Manifest)
	assert.False(t, cfg.ShowBrowser)
	assert.Equal(t, 4, cfg.Convert.Workers)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firstpull.yaml")
	content := `
data_root: /data
show_browser: true
fetch:
  link_timeout: 30s
convert:
  workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data", cfg.DataRoot)
	assert.True(t, cfg.ShowBrowser)
	assert.Equal(t, "30s", cfg.Fetch.LinkTimeout)
	assert.Equal(t, 2, cfg.Convert.Workers)
	// Untouched sections keep their defaults.
	assert.Equal(t, "state-list.json", cfg.Fetch.Manifest)
	assert.Equal(t, "1s", cfg.Fetch.StatePause)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firstpull.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "firstpull.yaml")

	cfg := DefaultConfig()
	cfg.DataRoot = "/tmp/first"
	cfg.Convert.Workers = 8
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/first", loaded.DataRoot)
	assert.Equal(t, 8, loaded.Convert.Workers)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Convert.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DataRoot = ""
	assert.Error(t, cfg.Validate())
}

func TestPathsResolveAgainstDataRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataRoot = "/data"

	assert.Equal(t, "/data/scraped", cfg.ScrapedPath())
	assert.Equal(t, "/data/output", cfg.OutputPath())
	assert.Equal(t, filepath.Join("/data", ".firstpull", "run"), cfg.WorkspacePath())
	assert.Equal(t, filepath.Join(cfg.WorkspacePath(), "manifest", "state-list.json"), cfg.InstalledManifestPath())
	assert.Equal(t, filepath.Join(cfg.WorkspacePath(), "browser"), cfg.BrowserDir())

	cfg.ScrapedDir = "/abs/scraped"
	assert.Equal(t, "/abs/scraped", cfg.ScrapedPath())
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "180s", cfg.Fetch.LinkTimeout)
	assert.Equal(t, 180.0, cfg.GetLinkTimeout().Seconds())

	cfg.Fetch.LinkTimeout = "garbage"
	assert.Equal(t, 180.0, cfg.GetLinkTimeout().Seconds(), "bad value falls back")

	cfg.Fetch.StatePause = "250ms"
	assert.Equal(t, int64(250), cfg.GetStatePause().Milliseconds())
}
