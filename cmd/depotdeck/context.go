package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"depotdeck/internal/catalog"
	"depotdeck/internal/config"
	"depotdeck/internal/install"
	"depotdeck/internal/logging"
	"depotdeck/internal/metadata"
	"depotdeck/internal/records"
	"depotdeck/internal/target"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	log        *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger writes to stderr and the log file. Falls back to a nop logger so a
// broken log dir never blocks a command.
func (c *commandContext) logger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.log = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.log = logging.NewNop()
			return
		}
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
			Dir:     cfg.Paths.LogDir,
			Pattern: logging.ArchivePattern,
		})
		c.log = logger
	})
	return c.log
}

func (c *commandContext) catalogClient() (*catalog.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return catalog.New(cfg.Catalog.APIKey, cfg.Catalog.BaseURL, catalog.WithTimeout(cfg.CatalogTimeout()))
}

// metadataSource chains the HTTP app-info API with steamcmd when installed,
// behind the bounded prefetch pool.
func (c *commandContext) metadataSource() (*catalog.Prefetcher, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	var chain metadata.Chain
	if cfg.Catalog.MetadataURL != "" {
		source, err := metadata.NewHTTPSource(cfg.Catalog.MetadataURL,
			metadata.WithHTTPClient(&http.Client{Timeout: cfg.CatalogTimeout()}))
		if err != nil {
			return nil, err
		}
		chain = append(chain, source)
	}
	if binary := cfg.Tools.SteamCMD; binary != "" {
		if _, err := exec.LookPath(binary); err == nil {
			source, err := metadata.NewSteamCMDSource(binary)
			if err != nil {
				return nil, err
			}
			chain = append(chain, source)
		}
	}
	return catalog.NewPrefetcher(chain, cfg.Catalog.PrefetchWorkers, c.logger()), nil
}

func (c *commandContext) withStore(fn func(*records.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := records.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (c *commandContext) descriptor(remote bool) (target.Descriptor, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return target.Descriptor{}, err
	}
	if remote && !cfg.HasRemote() {
		return target.Descriptor{}, errors.New("no remote target configured; set [ssh] host in the config file")
	}
	desc := install.DescriptorFromConfig(cfg, remote)
	if err := desc.Validate(); err != nil {
		return target.Descriptor{}, err
	}
	return desc, nil
}

func (c *commandContext) withAdapter(remote bool, fn func(target.Adapter) error) error {
	desc, err := c.descriptor(remote)
	if err != nil {
		return err
	}
	adapter, err := install.AdaptersFromConfig(c.config, c.logger())(desc)
	if err != nil {
		return fmt.Errorf("open target %s: %w", desc.Key(), err)
	}
	defer adapter.Close()
	return fn(adapter)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func addRemoteFlag(cmd *cobra.Command, remote *bool) {
	cmd.Flags().BoolVarP(remote, "remote", "r", false, "Use the remote target from [ssh] instead of this machine")
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
