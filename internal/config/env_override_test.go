package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_ShowBrowser(t *testing.T) {
	t.Run("SHOW_BROWSER=1 enables the visible browser", func(t *testing.T) {
		t.Setenv("SHOW_BROWSER", "1")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.ShowBrowser)
	})

	t.Run("truthy spellings", func(t *testing.T) {
		for _, v := range []string{"1", "true", "TRUE", "yes", "on", " On "} {
			t.Setenv("SHOW_BROWSER", v)
			cfg := DefaultConfig()
			cfg.applyEnvOverrides()
			assert.True(t, cfg.ShowBrowser, "value %q", v)
		}
	})

	t.Run("falsy values override a true config", func(t *testing.T) {
		t.Setenv("SHOW_BROWSER", "0")

		cfg := DefaultConfig()
		cfg.ShowBrowser = true
		cfg.applyEnvOverrides()

		assert.False(t, cfg.ShowBrowser)
	})

	t.Run("unset leaves the config value alone", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ShowBrowser = true
		cfg.applyEnvOverrides()

		assert.True(t, cfg.ShowBrowser)
	})
}

func TestEnvOverrides_Paths(t *testing.T) {
	t.Setenv("FIRSTPULL_DATA_ROOT", "/srv/first")
	t.Setenv("FIRSTPULL_BROWSER", "/usr/bin/chromium")
	t.Setenv("FIRSTPULL_MANIFEST", "states.json")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/srv/first", cfg.DataRoot)
	assert.Equal(t, "/usr/bin/chromium", cfg.BrowserPath)
	assert.Equal(t, "states.json", cfg.Fetch.Manifest)
	assert.Equal(t, "/srv/first/states.json", cfg.ManifestPath())
}

func TestEnvOverrides_Logging(t *testing.T) {
	t.Setenv("FIRSTPULL_LOG_LEVEL", "debug")
	t.Setenv("FIRSTPULL_LOG_FORMAT", "json")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "on", "YES"} {
		assert.True(t, Truthy(v), "value %q", v)
	}
	for _, v := range []string{"", "0", "false", "off", "no", "2"} {
		assert.False(t, Truthy(v), "value %q", v)
	}
}
