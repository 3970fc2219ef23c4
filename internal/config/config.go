package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local working directories.
type Paths struct {
	CacheDir string `toml:"cache_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Catalog contains configuration for the depot catalog service.
type Catalog struct {
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	MetadataURL     string `toml:"metadata_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	PrefetchWorkers int    `toml:"prefetch_workers"`
}

// SSH contains the remote target connection settings.
type SSH struct {
	Host                  string `toml:"host"`
	Port                  int    `toml:"port"`
	User                  string `toml:"user"`
	Password              string `toml:"password"`
	KeyPath               string `toml:"key_path"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
}

// Tools contains external binary locations.
type Tools struct {
	DepotDownloader string `toml:"depot_downloader"`
	Steamless       string `toml:"steamless"`
	Mono            string `toml:"mono"`
	Rsync           string `toml:"rsync"`
	SSHPass         string `toml:"sshpass"`
	SteamCMD        string `toml:"steamcmd"`
}

// Install contains orchestrator tuning.
type Install struct {
	LibraryRoots        []string `toml:"library_roots"`
	Language            string   `toml:"language"`
	MaxDownloads        int      `toml:"max_downloads"`
	Retries             int      `toml:"retries"`
	RetryBackoffSeconds int      `toml:"retry_backoff_seconds"`
	ProgressIntervalMS  int      `toml:"progress_interval_ms"`
	KeepCache           bool     `toml:"keep_cache"`
	SLSsteamConfigPath  string   `toml:"slssteam_config_path"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for depotdeck.
//
// Configuration sections by subsystem:
//   - Paths: cache, state (records database, lock file), and log directories
//   - Catalog: bundle/metadata service endpoints and API key
//   - SSH: remote target host and credentials
//   - Tools: DepotDownloaderMod, Steamless, rsync, sshpass, steamcmd
//   - Install: library preferences, retry budget, progress cadence
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Catalog       Catalog       `toml:"catalog"`
	SSH           SSH           `toml:"ssh"`
	Tools         Tools         `toml:"tools"`
	Install       Install       `toml:"install"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the per-user config file.
func DefaultConfigPath() (string, error) {
	return ExpandPath(defaultConfigPath)
}

// Load reads the config at path, or the first of the per-user file and
// ./depotdeck.toml when path is empty. A missing file yields defaults. The
// result has environment overrides applied, paths expanded and is validated.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	resolved, exists, err = locate(path)
	if err != nil {
		return nil, "", false, err
	}

	loaded := Default()
	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&loaded); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config %s: %s", resolved, strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err := loaded.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, "", false, err
	}
	return &loaded, resolved, exists, nil
}

func locate(path string) (string, bool, error) {
	candidates := []string{path}
	if path == "" {
		candidates = []string{defaultConfigPath, "depotdeck.toml"}
	}
	var first string
	for _, candidate := range candidates {
		expanded, err := ExpandPath(candidate)
		if err != nil {
			return "", false, err
		}
		if first == "" {
			first = expanded
		}
		info, err := os.Stat(expanded)
		switch {
		case err == nil && !info.IsDir():
			return expanded, true, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}
	return first, false, nil
}

// EnsureDirectories creates the cache, state, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RecordsPath returns the installed-title database location.
func (c *Config) RecordsPath() string {
	return filepath.Join(c.Paths.StateDir, "installed.db")
}

// LockPath returns the install session lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "install.lock")
}

// BundleDir returns where downloaded catalog bundles are stored.
func (c *Config) BundleDir() string {
	return filepath.Join(c.Paths.CacheDir, "bundles")
}

// DepotCacheDir returns the root of the per-depot download cache.
func (c *Config) DepotCacheDir() string {
	return filepath.Join(c.Paths.CacheDir, "depots")
}

// HasRemote reports whether an SSH target is configured.
func (c *Config) HasRemote() bool {
	return strings.TrimSpace(c.SSH.Host) != ""
}

// CatalogTimeout returns the catalog HTTP timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the base delay between transient retries.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Install.RetryBackoffSeconds) * time.Second
}

// ProgressInterval returns the progress coalescing window.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Install.ProgressIntervalMS) * time.Millisecond
}

// SSHConnectTimeout returns the remote dial timeout.
func (c *Config) SSHConnectTimeout() time.Duration {
	return time.Duration(c.SSH.ConnectTimeoutSeconds) * time.Second
}

// ExpandPath resolves a leading ~ to the home directory and returns the
// cleaned absolute path. Empty input stays empty.
func ExpandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, strings.TrimPrefix(value, "~"))
	}
	absolute, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return absolute, nil
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "depotdeck")
	}
	return "~/.cache/depotdeck"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
