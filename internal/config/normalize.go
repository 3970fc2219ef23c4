package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCatalog()
	if err := c.normalizeSSH(); err != nil {
		return err
	}
	if err := c.normalizeTools(); err != nil {
		return err
	}
	c.normalizeInstall()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = ExpandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = ExpandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() {
	if c.Catalog.APIKey == "" {
		if value, ok := os.LookupEnv("DEPOTDECK_API_KEY"); ok {
			c.Catalog.APIKey = value
		}
	}
	c.Catalog.APIKey = strings.TrimSpace(c.Catalog.APIKey)
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaultCatalogBaseURL
	}
	c.Catalog.MetadataURL = strings.TrimRight(strings.TrimSpace(c.Catalog.MetadataURL), "/")
	if c.Catalog.TimeoutSeconds <= 0 {
		c.Catalog.TimeoutSeconds = defaultCatalogTimeoutSeconds
	}
	if c.Catalog.PrefetchWorkers <= 0 {
		c.Catalog.PrefetchWorkers = defaultPrefetchWorkers
	}
}

func (c *Config) normalizeSSH() error {
	c.SSH.Host = strings.TrimSpace(c.SSH.Host)
	c.SSH.User = strings.TrimSpace(c.SSH.User)
	if c.SSH.User == "" {
		c.SSH.User = defaultSSHUser
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = defaultSSHPort
	}
	if c.SSH.Password == "" {
		if value, ok := os.LookupEnv("DEPOTDECK_SSH_PASSWORD"); ok {
			c.SSH.Password = value
		}
	}
	if strings.TrimSpace(c.SSH.KeyPath) != "" {
		expanded, err := ExpandPath(strings.TrimSpace(c.SSH.KeyPath))
		if err != nil {
			return fmt.Errorf("ssh.key_path: %w", err)
		}
		c.SSH.KeyPath = expanded
	}
	if c.SSH.ConnectTimeoutSeconds <= 0 {
		c.SSH.ConnectTimeoutSeconds = defaultSSHConnectTimeout
	}
	return nil
}

func (c *Config) normalizeTools() error {
	c.Tools.DepotDownloader = defaultString(c.Tools.DepotDownloader, defaultDepotDownloader)
	c.Tools.Mono = defaultString(c.Tools.Mono, defaultMono)
	c.Tools.Rsync = defaultString(c.Tools.Rsync, defaultRsync)
	c.Tools.SSHPass = defaultString(c.Tools.SSHPass, defaultSSHPass)
	c.Tools.SteamCMD = strings.TrimSpace(c.Tools.SteamCMD)
	c.Tools.Steamless = strings.TrimSpace(c.Tools.Steamless)
	if c.Tools.Steamless != "" {
		expanded, err := ExpandPath(c.Tools.Steamless)
		if err != nil {
			return fmt.Errorf("tools.steamless: %w", err)
		}
		c.Tools.Steamless = expanded
	}
	if strings.ContainsRune(c.Tools.DepotDownloader, '/') || strings.HasPrefix(c.Tools.DepotDownloader, "~") {
		expanded, err := ExpandPath(c.Tools.DepotDownloader)
		if err != nil {
			return fmt.Errorf("tools.depot_downloader: %w", err)
		}
		c.Tools.DepotDownloader = expanded
	}
	return nil
}

// Library roots stay verbatim: they may name paths on the remote host.
func (c *Config) normalizeInstall() {
	roots := make([]string, 0, len(c.Install.LibraryRoots))
	for _, root := range c.Install.LibraryRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		roots = append(roots, root)
	}
	c.Install.LibraryRoots = roots
	c.Install.Language = strings.TrimSpace(c.Install.Language)
	if c.Install.Language == "" {
		c.Install.Language = defaultLanguage
	}
	if c.Install.MaxDownloads <= 0 {
		c.Install.MaxDownloads = defaultMaxDownloads
	}
	if c.Install.RetryBackoffSeconds <= 0 {
		c.Install.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
	if c.Install.ProgressIntervalMS <= 0 {
		c.Install.ProgressIntervalMS = defaultProgressIntervalMS
	}
	c.Install.SLSsteamConfigPath = defaultString(c.Install.SLSsteamConfigPath, defaultSLSsteamConfigPath)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
