package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateSSH(); err != nil {
		return err
	}
	if err := c.validateInstall(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireAPIKey reports a descriptive error when the catalog key is missing.
// Commands that talk to the catalog service call this; offline commands do not.
func (c *Config) RequireAPIKey() error {
	if c.Catalog.APIKey != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("catalog.api_key is required. Set DEPOTDECK_API_KEY env var or edit %s (create with 'depotdeck config init')", defaultPath)
}

func (c *Config) validateCatalog() error {
	if _, err := url.ParseRequestURI(c.Catalog.BaseURL); err != nil {
		return fmt.Errorf("catalog.base_url is invalid: %w", err)
	}
	if c.Catalog.MetadataURL != "" {
		if _, err := url.ParseRequestURI(c.Catalog.MetadataURL); err != nil {
			return fmt.Errorf("catalog.metadata_url is invalid: %w", err)
		}
	}
	return nil
}

func (c *Config) validateSSH() error {
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be between 1 and 65535, got %d", c.SSH.Port)
	}
	if c.SSH.Host == "" {
		return nil
	}
	if c.SSH.Password == "" && c.SSH.KeyPath == "" {
		return errors.New("ssh.password or ssh.key_path must be set when ssh.host is configured")
	}
	return nil
}

func (c *Config) validateInstall() error {
	if c.Install.Retries < 0 {
		return errors.New("install.retries must be >= 0")
	}
	if c.Install.MaxDownloads > 256 {
		return fmt.Errorf("install.max_downloads must be <= 256, got %d", c.Install.MaxDownloads)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be >= 0")
	}
	topic := strings.TrimSpace(c.Notifications.NtfyTopic)
	if topic == "" {
		return nil
	}
	if _, err := url.ParseRequestURI(topic); err != nil {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
