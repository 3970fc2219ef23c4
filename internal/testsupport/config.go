package testsupport

import (
	"path/filepath"
	"testing"

	"depotdeck/internal/config"
)

// ConfigOption adjusts a generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig returns a config whose cache, state, log and library paths all
// live under a fresh temp directory. Retries and progress ticks are fast.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Catalog.APIKey = "test"
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Install.LibraryRoots = []string{filepath.Join(base, "library")}
	cfg.Install.SLSsteamConfigPath = filepath.Join(base, "slssteam", "config.yaml")
	cfg.Install.RetryBackoffSeconds = 0
	cfg.Install.ProgressIntervalMS = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// BaseDir returns the temp directory NewConfig rooted the config in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.CacheDir)
}

func WithAPIKey(key string) ConfigOption {
	return func(cfg *config.Config) { cfg.Catalog.APIKey = key }
}

// WithCatalogURL points the catalog client at a test server.
func WithCatalogURL(url string) ConfigOption {
	return func(cfg *config.Config) { cfg.Catalog.BaseURL = url }
}

// WithRemote configures a password-authenticated SSH target.
func WithRemote(host string, port int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.SSH.Host = host
		cfg.SSH.Port = port
		cfg.SSH.Password = "secret"
	}
}
