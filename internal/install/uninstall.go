package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"depotdeck/internal/logging"
	"depotdeck/internal/notifications"
	"depotdeck/internal/records"
	"depotdeck/internal/services"
	"depotdeck/internal/steamcfg"
	"depotdeck/internal/target"
)

// UninstallOption customizes Uninstall.
type UninstallOption func(*uninstallConfig)

type uninstallConfig struct {
	logger   *slog.Logger
	notifier notifications.Service
}

// WithUninstallLogger sets the logger used for best-effort steps.
func WithUninstallLogger(logger *slog.Logger) UninstallOption {
	return func(c *uninstallConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUninstallNotifier announces the removal.
func WithUninstallNotifier(notifier notifications.Service) UninstallOption {
	return func(c *uninstallConfig) {
		if notifier != nil {
			c.notifier = notifier
		}
	}
}

// Uninstall removes a title from a target: the install tree first, then the
// appmanifest and SLSsteam entry, then the install record. Only the first
// step can fail the uninstall. The title is located through its record, or
// by scanning the target's library roots when no record exists.
func Uninstall(ctx context.Context, adapter target.Adapter, store RecordStore, titleID string, opts ...UninstallOption) error {
	cfg := uninstallConfig{logger: logging.NewNop(), notifier: notifications.NewNoop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	titleID = strings.TrimSpace(titleID)
	if titleID == "" {
		return services.Wrap(services.ErrValidation, "uninstall", "title", "title id required", nil)
	}
	logger := cfg.logger.With(slog.String("title_id", titleID), slog.String("target", adapter.Key()))

	root, dir, name, err := locateInstall(ctx, adapter, store, titleID)
	if err != nil {
		return err
	}
	path := steamcfg.InstallPath(root, dir)
	started := time.Now()
	if err := adapter.RemoveTree(ctx, path); err != nil {
		return err
	}
	logger.Info("removed install tree", slog.String("path", path))

	if err := adapter.RemoveTitleConfig(ctx, titleID, root); err != nil && !errors.Is(err, services.ErrNotFound) {
		logging.WarnWithContext(logger, "failed to remove title configuration", "uninstall_config_failed",
			logging.String(logging.FieldImpact, "Steam may still list the title"),
			logging.Error(err),
		)
	}
	if store != nil {
		if _, err := store.Delete(ctx, adapter.Key(), titleID); err != nil {
			logging.WarnWithContext(logger, "failed to delete install record", "records_delete_failed",
				logging.Error(err),
			)
		}
	}

	logger.Info("title uninstalled", slog.String(logging.FieldEventType, "title_uninstalled"))
	err = cfg.notifier.NotifyUninstalled(ctx, notifications.Install{
		TitleID:   titleID,
		TitleName: name,
		Target:    adapter.Key(),
		Duration:  time.Since(started),
	})
	if err != nil {
		logger.Warn("notification failed", logging.Error(err))
	}
	return nil
}

func locateInstall(ctx context.Context, adapter target.Adapter, store RecordStore, titleID string) (root, dir, name string, err error) {
	if store != nil {
		var record *records.InstalledTitle
		record, err = store.Get(ctx, adapter.Key(), titleID)
		if err != nil {
			return "", "", "", err
		}
		if record != nil && record.InstallRoot != "" && record.InstallDir != "" {
			return record.InstallRoot, record.InstallDir, record.TitleName, nil
		}
	}

	roots, err := adapter.ListInstallRoots(ctx)
	if err != nil {
		return "", "", "", err
	}
	for _, candidate := range roots {
		manifest, err := adapter.ReadAppManifest(ctx, titleID, candidate)
		if errors.Is(err, services.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", "", "", err
		}
		if strings.TrimSpace(manifest.InstallDir) == "" {
			continue
		}
		return candidate, manifest.InstallDir, manifest.Name, nil
	}
	return "", "", "", services.Wrap(services.ErrNotFound, "uninstall", "locate",
		fmt.Sprintf("title %s is not installed on %s", titleID, adapter.Key()), nil)
}
