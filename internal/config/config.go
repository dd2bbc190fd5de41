// Package config loads firstpull configuration from YAML with environment
// overrides layered on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all firstpull configuration.
type Config struct {
	// DataRoot anchors every relative path below.
	DataRoot string `yaml:"data_root"`

	// Workspace is the run environment recreated by every pipeline run.
	Workspace string `yaml:"workspace"`

	// ScrapedDir receives raw workbooks; OutputDir receives CSVs.
	ScrapedDir string `yaml:"scraped_dir"`
	OutputDir  string `yaml:"output_dir"`

	// ShowBrowser runs the fetcher with a visible browser window.
	ShowBrowser bool `yaml:"show_browser"`

	// BrowserPath pins a browser binary; empty means resolve one.
	BrowserPath string `yaml:"browser_path"`

	Fetch   FetchConfig   `yaml:"fetch"`
	Convert ConvertConfig `yaml:"convert"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Log     LogConfig     `yaml:"log"`
}

// FetchConfig configures the report fetcher.
type FetchConfig struct {
	// Manifest is the state list consumed as the dependency manifest.
	Manifest string `yaml:"manifest"`

	// RequestTimeout bounds individual HTTP calls.
	RequestTimeout string `yaml:"request_timeout"`

	// DownloadTimeout bounds the workbook download.
	DownloadTimeout string `yaml:"download_timeout"`

	// LinkTimeout bounds waiting for the download link to appear.
	LinkTimeout string `yaml:"link_timeout"`

	// NavigationTimeout bounds page navigation.
	NavigationTimeout string `yaml:"navigation_timeout"`

	// StatePause is the politeness pause between states.
	StatePause string `yaml:"state_pause"`
}

// ConvertConfig configures the format converter.
type ConvertConfig struct {
	Workers int `yaml:"workers"`
}

// LedgerConfig configures the run ledger. The ledger lives outside the run
// workspace so history survives recreation.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		DataRoot:   ".",
		Workspace:  filepath.Join(".firstpull", "run"),
		ScrapedDir: "scraped",
		OutputDir:  "output",
		Fetch: FetchConfig{
			Manifest:          "state-list.json",
			RequestTimeout:    "60s",
			DownloadTimeout:   "120s",
			LinkTimeout:       "180s",
			NavigationTimeout: "60s",
			StatePause:        "1s",
		},
		Convert: ConvertConfig{
			Workers: 4,
		},
		Ledger: LedgerConfig{
			Path: filepath.Join(".firstpull", "ledger.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SHOW_BROWSER"); v != "" {
		c.ShowBrowser = Truthy(v)
	}
	if root := os.Getenv("FIRSTPULL_DATA_ROOT"); root != "" {
		c.DataRoot = root
	}
	if bin := os.Getenv("FIRSTPULL_BROWSER"); bin != "" {
		c.BrowserPath = bin
	}
	if manifest := os.Getenv("FIRSTPULL_MANIFEST"); manifest != "" {
		c.Fetch.Manifest = manifest
	}
	if level := os.Getenv("FIRSTPULL_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("FIRSTPULL_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
}

// Truthy reports whether an environment value means "on".
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("data_root must not be empty")
	}
	if c.Workspace == "" {
		return fmt.Errorf("workspace must not be empty")
	}
	if c.Convert.Workers < 1 {
		return fmt.Errorf("convert.workers must be at least 1, got %d", c.Convert.Workers)
	}
	return nil
}

// WorkspacePath returns the absolute-ish run workspace path.
func (c *Config) WorkspacePath() string { return c.resolve(c.Workspace) }

// ScrapedPath returns the raw workbook directory.
func (c *Config) ScrapedPath() string { return c.resolve(c.ScrapedDir) }

// OutputPath returns the converted output directory.
func (c *Config) OutputPath() string { return c.resolve(c.OutputDir) }

// ManifestPath returns the state manifest source path.
func (c *Config) ManifestPath() string { return c.resolve(c.Fetch.Manifest) }

// LedgerPath returns the run ledger database path.
func (c *Config) LedgerPath() string { return c.resolve(c.Ledger.Path) }

// InstalledManifestPath returns the workspace copy the fetcher consumes.
func (c *Config) InstalledManifestPath() string {
	return filepath.Join(c.WorkspacePath(), "manifest", "state-list.json")
}

// BrowserDir returns the engine and profile directory inside the workspace.
func (c *Config) BrowserDir() string {
	return filepath.Join(c.WorkspacePath(), "browser")
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataRoot, p)
}

// GetRequestTimeout returns the HTTP request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Fetch.RequestTimeout, 60*time.Second)
}

// GetDownloadTimeout returns the workbook download timeout.
func (c *Config) GetDownloadTimeout() time.Duration {
	return parseDuration(c.Fetch.DownloadTimeout, 120*time.Second)
}

// GetLinkTimeout returns the download-link wait timeout.
func (c *Config) GetLinkTimeout() time.Duration {
	return parseDuration(c.Fetch.LinkTimeout, 180*time.Second)
}

// GetNavigationTimeout returns the page navigation timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Fetch.NavigationTimeout, 60*time.Second)
}

// GetStatePause returns the pause between states.
func (c *Config) GetStatePause() time.Duration {
	return parseDuration(c.Fetch.StatePause, time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
