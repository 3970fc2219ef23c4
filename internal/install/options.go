package install

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"depotdeck/internal/config"
	"depotdeck/internal/downloader"
	"depotdeck/internal/notifications"
	"depotdeck/internal/progress"
	"depotdeck/internal/records"
	"depotdeck/internal/steamless"
	"depotdeck/internal/target"
)

// Downloader fetches one depot into a cache directory.
type Downloader interface {
	Download(ctx context.Context, req downloader.Request, onProgress func(downloader.Progress) error) error
}

// DrmStripper patches the main executable under a directory.
type DrmStripper interface {
	Process(ctx context.Context, gameDir, titleName string) (steamless.Result, error)
}

// RecordStore persists installed-title records.
type RecordStore interface {
	Upsert(ctx context.Context, title records.InstalledTitle) error
	Get(ctx context.Context, targetKey, titleID string) (*records.InstalledTitle, error)
	Delete(ctx context.Context, targetKey, titleID string) (bool, error)
}

// AdapterFactory opens the adapter for a target descriptor.
type AdapterFactory func(desc target.Descriptor) (target.Adapter, error)

// Options carries everything a session needs. The orchestrator never reads
// configuration on its own; callers build Options once, usually through
// OptionsFromConfig.
type Options struct {
	CacheDir         string
	Retries          int
	RetryBackoff     time.Duration
	ProgressInterval time.Duration
	KeepCache        bool
	// LockPath, when set, guards the session slot across processes.
	LockPath string
	// LibraryPreferences orders discovered library roots when a selection
	// does not name one.
	LibraryPreferences []string

	Downloader Downloader
	// Steamless is nil when no DRM-strip tool is configured.
	Steamless DrmStripper
	Records   RecordStore
	Notifier  notifications.Service
	Adapters  AdapterFactory
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = progress.DefaultInterval
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Notifier == nil {
		o.Notifier = notifications.NewNoop()
	}
	return o
}

func (o Options) validate() error {
	if strings.TrimSpace(o.CacheDir) == "" {
		return fmt.Errorf("install: cache dir required")
	}
	if o.Downloader == nil {
		return fmt.Errorf("install: downloader required")
	}
	if o.Adapters == nil {
		return fmt.Errorf("install: adapter factory required")
	}
	return nil
}

// OptionsFromConfig wires the configured tools, records store and notifier.
// The store is owned by the caller.
func OptionsFromConfig(cfg *config.Config, store RecordStore, logger *slog.Logger) (Options, error) {
	dl, err := downloader.New(cfg.Tools.DepotDownloader,
		downloader.WithMaxDownloads(cfg.Install.MaxDownloads),
		downloader.WithLogger(logger),
	)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		CacheDir:           cfg.DepotCacheDir(),
		Retries:            cfg.Install.Retries,
		RetryBackoff:       cfg.RetryBackoff(),
		ProgressInterval:   cfg.ProgressInterval(),
		KeepCache:          cfg.Install.KeepCache,
		LockPath:           cfg.LockPath(),
		LibraryPreferences: cfg.Install.LibraryRoots,
		Downloader:         dl,
		Records:            store,
		Notifier:           notifications.NewService(cfg),
		Adapters:           AdaptersFromConfig(cfg, logger),
		Logger:             logger,
	}
	if tool := strings.TrimSpace(cfg.Tools.Steamless); tool != "" {
		stripper, err := steamless.New(tool, steamless.WithMono(cfg.Tools.Mono), steamless.WithLogger(logger))
		if err != nil {
			return Options{}, err
		}
		opts.Steamless = stripper
	}
	return opts, nil
}

// AdaptersFromConfig opens Local or Remote adapters using configured tools.
func AdaptersFromConfig(cfg *config.Config, logger *slog.Logger) AdapterFactory {
	return func(desc target.Descriptor) (target.Adapter, error) {
		if desc.Kind == target.KindLocal {
			return target.NewLocal(target.LocalOptions{
				SLSsteamConfig: cfg.Install.SLSsteamConfigPath,
				Logger:         logger,
			})
		}
		return target.NewRemote(desc, target.RemoteOptions{
			Rsync:          cfg.Tools.Rsync,
			SSHPass:        cfg.Tools.SSHPass,
			ConnectTimeout: cfg.SSHConnectTimeout(),
			SLSsteamConfig: cfg.Install.SLSsteamConfigPath,
			Logger:         logger,
		})
	}
}

// DescriptorFromConfig builds the remote descriptor from [ssh], or the local
// one when remote is false.
func DescriptorFromConfig(cfg *config.Config, remote bool) target.Descriptor {
	if !remote {
		return target.LocalDescriptor()
	}
	return target.Descriptor{
		Kind:     target.KindRemote,
		Host:     cfg.SSH.Host,
		Port:     cfg.SSH.Port,
		User:     cfg.SSH.User,
		Password: cfg.SSH.Password,
		KeyPath:  cfg.SSH.KeyPath,
	}
}
