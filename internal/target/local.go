package target

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dchest/safefile"
	"github.com/shirou/gopsutil/v3/disk"

	"depotdeck/internal/config"
	"depotdeck/internal/fileutil"
	"depotdeck/internal/logging"
	"depotdeck/internal/services"
	"depotdeck/internal/steamcfg"
)

// LocalOptions configures a Local adapter.
type LocalOptions struct {
	// SteamRoot is the client symlink; defaults to ~/.steam/steam.
	SteamRoot string
	// SLSsteamConfig is the SLSsteam config.yaml path; "~" is expanded.
	SLSsteamConfig string
	BlockSize      int
	Logger         *slog.Logger
}

// Local installs onto this machine.
type Local struct {
	steamRoot string
	slsConfig string
	blockSize int
	logger    *slog.Logger
}

var _ Adapter = (*Local)(nil)

// NewLocal builds a Local adapter.
func NewLocal(opts LocalOptions) (*Local, error) {
	steamRoot := opts.SteamRoot
	if steamRoot == "" {
		steamRoot = steamcfg.SteamRootLink
	}
	steamRoot, err := config.ExpandPath(steamRoot)
	if err != nil {
		return nil, fmt.Errorf("steam root: %w", err)
	}
	slsConfig := opts.SLSsteamConfig
	if slsConfig == "" {
		slsConfig = steamcfg.DefaultSLSsteamConfig
	}
	slsConfig, err = config.ExpandPath(slsConfig)
	if err != nil {
		return nil, fmt.Errorf("slssteam config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Local{
		steamRoot: steamRoot,
		slsConfig: slsConfig,
		blockSize: opts.BlockSize,
		logger:    logging.NewComponentLogger(logger, "target-local"),
	}, nil
}

// Key implements Adapter.
func (l *Local) Key() string { return string(KindLocal) }

// ListInstallRoots returns the resolved client root plus every library in
// libraryfolders.vdf that exists on disk.
func (l *Local) ListInstallRoots(ctx context.Context) ([]string, error) {
	var roots []string
	resolved, err := filepath.EvalSymlinks(l.steamRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve steam root: %w", err)
	}
	roots = append(roots, resolved)
	data, err := os.ReadFile(steamcfg.LibraryFoldersPath(resolved))
	if err == nil {
		paths, parseErr := steamcfg.LibraryPaths(data)
		if parseErr != nil {
			l.logger.Warn("libraryfolders.vdf unreadable; using client root only",
				logging.Error(parseErr),
				logging.String(logging.FieldEventType, "libraryfolders_parse_failed"),
			)
		}
		roots = append(roots, paths...)
	}
	var existing []string
	for _, root := range steamcfg.DedupePaths(roots) {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			existing = append(existing, root)
		}
	}
	return existing, nil
}

// Transfer copies src into dest file by file in fixed-size blocks, waiting
// on gate at every block boundary.
func (l *Local) Transfer(ctx context.Context, src, dest string, gate Gate, progress func(TransferProgress)) error {
	filesTotal, bytesTotal, err := fileutil.TreeSize(src)
	if err != nil {
		return services.Wrap(services.ErrTransferFailed, "transfer", "scan source", src, err)
	}
	state := TransferProgress{BytesTotal: bytesTotal, FilesTotal: filesTotal}
	started := time.Now()
	report := func() {
		if progress == nil {
			return
		}
		if bytesTotal > 0 {
			state.Percent = float64(state.BytesDone) / float64(bytesTotal) * 100
		}
		if elapsed := time.Since(started).Seconds(); elapsed > 0 {
			state.BytesPerSec = float64(state.BytesDone) / elapsed
		}
		progress(state)
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if gate != nil {
			if err := gate.Wait(ctx); err != nil {
				return err
			}
		}
		state.CurrentFile = rel
		err = fileutil.CopyChunked(ctx, path, target, l.blockSize, func(n int64) error {
			state.BytesDone += uint64(n)
			report()
			if gate != nil {
				return gate.Wait(ctx)
			}
			return nil
		})
		if err != nil {
			return err
		}
		state.FilesDone++
		report()
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, services.ErrCancelled) {
			return err
		}
		return services.Wrap(services.ErrTransferFailed, "transfer", "copy", dest, err)
	}
	return nil
}

// WriteDepotConfig stores decryption keys in config.vdf, registers the title
// with SLSsteam and copies manifests into the library's depotcache.
func (l *Local) WriteDepotConfig(ctx context.Context, req ConfigRequest) error {
	steamRoot, err := filepath.EvalSymlinks(l.steamRoot)
	if err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "resolve steam root", l.steamRoot, err)
	}
	if err := l.editFile(steamcfg.ConfigVDFPath(steamRoot), func(content []byte) ([]byte, bool, error) {
		out, changed, err := steamcfg.AddDecryptionKeys(content, req.Keys)
		return out, changed > 0, err
	}); err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "config.vdf", "", err)
	}
	if err := l.editFile(l.slsConfig, func(content []byte) ([]byte, bool, error) {
		return steamcfg.AddAdditionalApp(content, req.TitleID, req.TitleName)
	}); err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "slssteam", "", err)
	}
	cacheDir := steamcfg.DepotCacheDir(req.LibraryRoot)
	for _, manifest := range req.ManifestFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fileutil.CopyFile(manifest, filepath.Join(cacheDir, filepath.Base(manifest))); err != nil {
			return services.Wrap(services.ErrConfigWriteFailed, "configure", "depotcache", filepath.Base(manifest), err)
		}
	}
	l.logger.Debug("depot config written",
		logging.String("title_id", req.TitleID),
		logging.Int("keys", len(req.Keys)),
		logging.Int("manifests", len(req.ManifestFiles)),
	)
	return nil
}

// MarkInstalled writes the appmanifest and per-depot completion markers.
func (l *Local) MarkInstalled(ctx context.Context, req MarkRequest) error {
	acfPath := steamcfg.AppManifestPath(req.LibraryRoot, req.Manifest.AppID)
	if err := os.MkdirAll(filepath.Dir(acfPath), 0o755); err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "appmanifest", acfPath, err)
	}
	if err := safefile.WriteFile(acfPath, req.Manifest.Render(), 0o644); err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "appmanifest", acfPath, err)
	}
	installPath := steamcfg.InstallPath(req.LibraryRoot, req.Manifest.InstallDir)
	for _, depot := range req.Manifest.Depots {
		marker := steamcfg.MarkerPath(installPath, depot.DepotID, depot.ManifestID)
		if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
			return services.Wrap(services.ErrConfigWriteFailed, "configure", "marker", marker, err)
		}
		var err error
		if src, ok := req.ManifestFiles[depot.DepotID]; ok && src != "" {
			err = fileutil.CopyFile(src, marker)
		} else {
			err = os.WriteFile(marker, nil, 0o644)
		}
		if err != nil {
			return services.Wrap(services.ErrConfigWriteFailed, "configure", "marker", marker, err)
		}
	}
	return nil
}

// TestReachable implements Adapter; this machine is always reachable.
func (l *Local) TestReachable(context.Context) bool { return true }

// RemoveTree deletes path recursively. Shallow paths are refused.
func (l *Local) RemoveTree(ctx context.Context, path string) error {
	if unsafeRemovalPath(path) {
		return services.Wrap(services.ErrValidation, "target", "remove", fmt.Sprintf("refusing to remove %q", path), nil)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path is present.
func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, err
}

// RemoveTitleConfig deletes the appmanifest and the SLSsteam entry. Both are
// attempted; the errors are joined.
func (l *Local) RemoveTitleConfig(ctx context.Context, titleID, libraryRoot string) error {
	var errs []error
	acfPath := steamcfg.AppManifestPath(libraryRoot, titleID)
	if err := os.Remove(acfPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove appmanifest: %w", err))
	}
	if err := l.editFile(l.slsConfig, func(content []byte) ([]byte, bool, error) {
		return steamcfg.RemoveAdditionalApp(content, titleID)
	}); err != nil {
		errs = append(errs, fmt.Errorf("remove slssteam entry: %w", err))
	}
	return errors.Join(errs...)
}

// ReadAppManifest loads appmanifest_{titleID}.acf from libraryRoot.
func (l *Local) ReadAppManifest(ctx context.Context, titleID, libraryRoot string) (steamcfg.AppManifest, error) {
	data, err := os.ReadFile(steamcfg.AppManifestPath(libraryRoot, titleID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return steamcfg.AppManifest{}, services.Wrap(services.ErrNotFound, "target", "appmanifest", titleID, err)
		}
		return steamcfg.AppManifest{}, err
	}
	return steamcfg.ParseAppManifest(data)
}

// FreeSpace reports bytes available to the user on the filesystem holding
// path, or its nearest existing parent.
func (l *Local) FreeSpace(ctx context.Context, path string) (uint64, error) {
	probe := path
	for !fileutil.Exists(probe) {
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}
	usage, err := disk.UsageWithContext(ctx, probe)
	if err != nil {
		return 0, fmt.Errorf("disk usage %s: %w", probe, err)
	}
	return usage.Free, nil
}

// Close implements Adapter.
func (l *Local) Close() error { return nil }

// editFile applies edit to path (missing files read as empty) and writes the
// result atomically when edit reports a change.
func (l *Local) editFile(path string, edit func([]byte) ([]byte, bool, error)) error {
	content, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	out, changed, err := edit(content)
	if err != nil || !changed {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return safefile.WriteFile(path, out, 0o644)
}
