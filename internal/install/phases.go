package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"depotdeck/internal/downloader"
	"depotdeck/internal/fileutil"
	"depotdeck/internal/logging"
	"depotdeck/internal/notifications"
	"depotdeck/internal/progress"
	"depotdeck/internal/records"
	"depotdeck/internal/services"
	"depotdeck/internal/steamcfg"
	"depotdeck/internal/target"
)

// run executes the phases in order and publishes the terminal snapshot.
func (o *Orchestrator) run(s *session) {
	started := time.Now()
	defer o.finish(s)

	s.logger.Info("install session started",
		slog.String(logging.FieldEventType, "install_started"),
		slog.String("title_name", s.sel.Catalog.DisplayName()),
		slog.Int("depots", len(s.sel.Catalog.Entries)),
		logging.Bytes("size", s.sel.Catalog.TotalSize()),
	)

	phases := []func(*session) error{
		o.download,
		o.stripDRM,
		o.transfer,
		o.configure,
	}
	var err error
	for _, phase := range phases {
		if err = phase(s); err != nil {
			break
		}
	}
	o.conclude(s, err, time.Since(started))
}

func (o *Orchestrator) download(s *session) error {
	catalog := s.sel.Catalog
	s.enterPhase(progress.PhaseDownloading, "downloading depots")
	s.update(func(st *progress.Snapshot) {
		st.BytesTotal = catalog.TotalSize()
		st.DepotsTotal = len(catalog.Entries)
	})

	var base uint64
	for _, entry := range catalog.Entries {
		if err := s.gate.Wait(s.ctx); err != nil {
			return err
		}
		if o.cache.isComplete(catalog.TitleID, entry) {
			base += entry.SizeBytes
			s.logger.Info("depot already in cache",
				slog.String(logging.FieldDepotID, entry.DepotID),
				slog.String("manifest_id", entry.ManifestID),
			)
			s.update(func(st *progress.Snapshot) { st.DepotsDone++ })
			s.advanceBytes(base, 0)
			continue
		}

		s.update(func(st *progress.Snapshot) {
			st.CurrentDepot = entry.DepotID
			st.Message = fmt.Sprintf("downloading depot %s", entry.DepotID)
		})
		req := downloader.Request{
			TitleID:      catalog.TitleID,
			DepotID:      entry.DepotID,
			ManifestID:   entry.ManifestID,
			Key:          entry.Key,
			ManifestFile: s.manifests[entry.DepotID],
			Dir:          o.cache.depotDir(catalog.TitleID, entry),
		}
		depotBase := base
		size := entry.SizeBytes
		err := withRetry(s.ctx, s.gate, s.logger, "download depot "+entry.DepotID, o.opts.Retries, o.opts.RetryBackoff, func(int) error {
			return o.opts.Downloader.Download(s.ctx, req, func(p downloader.Progress) error {
				if err := s.gate.Wait(s.ctx); err != nil {
					return err
				}
				pct := min(max(p.Percent, 0), 100)
				s.advanceBytes(depotBase+uint64(pct/100*float64(size)), p.BytesPerSec)
				return nil
			})
		})
		if err != nil {
			return err
		}
		if err := o.cache.markComplete(catalog.TitleID, entry); err != nil {
			s.logger.Warn("failed to mark depot complete",
				slog.String(logging.FieldDepotID, entry.DepotID),
				logging.Error(err),
			)
		}
		base += size
		s.update(func(st *progress.Snapshot) { st.DepotsDone++ })
		s.advanceBytes(base, 0)
	}
	return nil
}

// stripDRM runs Steamless over the cache. Failures never fail the install.
func (o *Orchestrator) stripDRM(s *session) error {
	if o.opts.Steamless == nil {
		return nil
	}
	s.enterPhase(progress.PhaseSteamless, "removing SteamStub DRM")
	if err := s.gate.Wait(s.ctx); err != nil {
		return err
	}
	dir := o.cache.titleDir(s.sel.Catalog.TitleID)
	result, err := o.opts.Steamless.Process(s.ctx, dir, s.sel.Catalog.DisplayName())
	if err != nil {
		if s.isCancelled(err) || s.ctx.Err() != nil {
			return err
		}
		logging.WarnWithContext(s.logger, "drm strip failed; continuing install", "drm_strip_failed",
			logging.String(logging.FieldErrorKind, string(services.KindDrmStripFailed)),
			logging.String(logging.FieldImpact, "the original executable is installed"),
			logging.Error(err),
		)
		return nil
	}
	if result.Executable == "" {
		s.logger.Info("no executable to patch")
		return nil
	}
	s.logger.Info("drm strip finished",
		slog.String("executable", result.Executable),
		slog.Bool("patched", result.Patched),
	)
	return nil
}

func (o *Orchestrator) transfer(s *session) error {
	catalog := s.sel.Catalog
	s.enterPhase(progress.PhaseTransferring, "transferring to "+s.adapter.Key())

	var (
		totalBytes uint64
		totalFiles int
	)
	for _, entry := range catalog.Entries {
		files, bytes, err := fileutil.TreeSize(o.cache.depotDir(catalog.TitleID, entry))
		if err != nil {
			return services.Wrap(services.ErrTransferFailed, "transfer", "scan cache", entry.DepotID, err)
		}
		totalFiles += files
		totalBytes += bytes
	}
	s.update(func(st *progress.Snapshot) {
		st.BytesTotal = totalBytes
		st.FilesTotal = totalFiles
		st.DepotsTotal = len(catalog.Entries)
	})

	var (
		baseBytes uint64
		baseFiles int
	)
	for _, entry := range catalog.Entries {
		if err := s.gate.Wait(s.ctx); err != nil {
			return err
		}
		src := o.cache.depotDir(catalog.TitleID, entry)
		files, bytes, _ := fileutil.TreeSize(src)
		s.update(func(st *progress.Snapshot) {
			st.CurrentDepot = entry.DepotID
			st.Message = fmt.Sprintf("transferring depot %s", entry.DepotID)
		})
		depotBytes, depotFiles := baseBytes, baseFiles
		err := withRetry(s.ctx, s.gate, s.logger, "transfer depot "+entry.DepotID, o.opts.Retries, o.opts.RetryBackoff, func(int) error {
			return s.adapter.Transfer(s.ctx, src, s.installPath, s.gate, func(tp target.TransferProgress) {
				done := tp.BytesDone
				if done == 0 && tp.Percent > 0 {
					done = uint64(min(tp.Percent, 100) / 100 * float64(bytes))
				}
				s.advanceBytes(depotBytes+min(done, bytes), tp.BytesPerSec)
				s.update(func(st *progress.Snapshot) {
					if n := depotFiles + min(tp.FilesDone, files); n > st.FilesDone {
						st.FilesDone = n
					}
				})
			})
		})
		if err != nil {
			if s.isCancelled(err) || services.KindOf(err) != services.KindInternal {
				return err
			}
			return services.Wrap(services.ErrTransferFailed, "transfer", "depot "+entry.DepotID, "", err)
		}
		baseBytes += bytes
		baseFiles += files
		s.update(func(st *progress.Snapshot) {
			st.DepotsDone++
			st.FilesDone = max(st.FilesDone, baseFiles)
		})
		s.advanceBytes(baseBytes, 0)
	}
	return nil
}

func (o *Orchestrator) configure(s *session) error {
	catalog := s.sel.Catalog
	s.enterPhase(progress.PhaseConfiguring, "writing Steam configuration")
	if err := s.gate.Wait(s.ctx); err != nil {
		return err
	}

	keys := make([]steamcfg.DepotKey, 0, len(catalog.Entries))
	manifestFiles := make([]string, 0, len(s.manifests))
	installed := make([]steamcfg.InstalledDepot, 0, len(catalog.Entries))
	depots := make([]records.DepotVersion, 0, len(catalog.Entries))
	for _, entry := range catalog.Entries {
		keys = append(keys, steamcfg.DepotKey{DepotID: entry.DepotID, Key: entry.Key})
		if path, ok := s.manifests[entry.DepotID]; ok {
			manifestFiles = append(manifestFiles, path)
		}
		installed = append(installed, steamcfg.InstalledDepot{
			DepotID:    entry.DepotID,
			ManifestID: entry.ManifestID,
			SizeBytes:  entry.SizeBytes,
		})
		depots = append(depots, records.DepotVersion{DepotID: entry.DepotID, ManifestID: entry.ManifestID})
	}

	err := s.adapter.WriteDepotConfig(s.ctx, target.ConfigRequest{
		TitleID:       catalog.TitleID,
		TitleName:     catalog.DisplayName(),
		LibraryRoot:   s.libraryRoot,
		Keys:          keys,
		ManifestFiles: manifestFiles,
	})
	if err != nil {
		return err
	}

	manifest := steamcfg.AppManifest{
		AppID:      catalog.TitleID,
		Name:       catalog.DisplayName(),
		InstallDir: catalog.EffectiveInstallDir(),
		SizeOnDisk: catalog.TotalSize(),
		Depots:     installed,
	}
	err = s.adapter.MarkInstalled(s.ctx, target.MarkRequest{
		LibraryRoot:   s.libraryRoot,
		Manifest:      manifest,
		ManifestFiles: s.manifests,
	})
	if err != nil {
		return err
	}

	if o.opts.Records != nil {
		record := records.InstalledTitle{
			TargetKey:          s.adapter.Key(),
			TitleID:            catalog.TitleID,
			TitleName:          catalog.DisplayName(),
			InstallRoot:        s.libraryRoot,
			InstallDir:         catalog.EffectiveInstallDir(),
			SizeBytes:          catalog.TotalSize(),
			Depots:             depots,
			InstalledViaMarker: true,
		}
		if err := o.opts.Records.Upsert(s.ctx, record); err != nil {
			logging.WarnWithContext(s.logger, "failed to record install", "records_upsert_failed",
				logging.String(logging.FieldImpact, "the title is installed but missing from list output"),
				logging.Error(err),
			)
		}
	}
	return nil
}

// conclude maps the session outcome onto a terminal snapshot.
func (o *Orchestrator) conclude(s *session, err error, elapsed time.Duration) {
	catalog := s.sel.Catalog
	event := notifications.Install{
		TitleID:   catalog.TitleID,
		TitleName: catalog.DisplayName(),
		Target:    s.adapter.Key(),
		Bytes:     catalog.TotalSize(),
		Duration:  elapsed,
	}
	// The session context may be cancelled; terminal bookkeeping gets its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), cleanupTimeout)
	defer cancel()

	switch {
	case err == nil:
		s.update(func(st *progress.Snapshot) {
			st.Phase = progress.PhaseFinished
			st.ResumePhase = ""
			st.BytesDone = st.BytesTotal
			st.FilesDone = st.FilesTotal
			st.CurrentDepot = ""
			st.Message = "installed"
		})
		s.logger.Info("install finished",
			slog.String(logging.FieldEventType, "install_finished"),
			logging.Duration("duration", elapsed),
		)
		if !o.opts.KeepCache {
			if err := o.cache.prune(catalog.TitleID); err != nil {
				s.logger.Warn("failed to prune download cache", logging.Error(err))
			}
		}
		o.notify(s, func() error { return o.opts.Notifier.NotifyInstallCompleted(ctx, event) })

	case s.isCancelled(err):
		s.mu.Lock()
		cleanup := s.cleanup
		s.mu.Unlock()
		if cleanup {
			o.cleanupCancelled(ctx, s)
		}
		s.update(func(st *progress.Snapshot) {
			st.Phase = progress.PhaseCancelled
			st.ResumePhase = ""
			st.Rate = 0
			st.Message = "cancelled"
		})
		s.setErr(services.Wrap(services.ErrCancelled, "", "", "install cancelled", nil))
		s.logger.Info("install cancelled",
			slog.String(logging.FieldEventType, "install_cancelled"),
			slog.Bool("cleanup", cleanup),
		)
		o.notify(s, func() error { return o.opts.Notifier.NotifyInstallCancelled(ctx, event) })

	default:
		phase := s.currentPhase()
		info := &progress.ErrorInfo{
			Kind:   services.KindOf(err),
			Phase:  phase,
			Detail: err.Error(),
		}
		s.update(func(st *progress.Snapshot) {
			st.Phase = progress.PhaseError
			st.ResumePhase = ""
			st.Rate = 0
			st.Err = info
			st.Message = info.Detail
		})
		s.setErr(err)
		logging.ErrorWithContext(s.logger, "install failed", "install_failed",
			logging.String(logging.FieldErrorKind, string(info.Kind)),
			logging.String(logging.FieldPhase, string(phase)),
			logging.String(logging.FieldImpact, "partial files are left in place"),
			logging.Error(err),
		)
		o.notify(s, func() error { return o.opts.Notifier.NotifyInstallFailed(ctx, event, err) })
	}
}

// cleanupCancelled removes what a cancelled session left behind. A title
// that existed before the session is never touched. Depot keys stay in
// config.vdf since other titles may share those depots.
func (o *Orchestrator) cleanupCancelled(ctx context.Context, s *session) {
	if s.freshInstall {
		if err := s.adapter.RemoveTree(ctx, s.installPath); err != nil {
			s.logger.Warn("failed to remove partial install", logging.Error(err))
		}
		if err := s.adapter.RemoveTitleConfig(ctx, s.sel.Catalog.TitleID, s.libraryRoot); err != nil {
			s.logger.Warn("failed to remove title config", logging.Error(err))
		}
	}
	if err := o.cache.prune(s.sel.Catalog.TitleID); err != nil {
		s.logger.Warn("failed to remove download cache", logging.Error(err))
	}
}

func (o *Orchestrator) notify(s *session, send func() error) {
	if err := send(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("notification failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "install outcome was not announced"),
		)
	}
}

// finish releases the session slot after the terminal snapshot.
func (o *Orchestrator) finish(s *session) {
	s.cancel()
	s.reporter.Close()
	if err := s.adapter.Close(); err != nil {
		s.logger.Debug("adapter close failed", logging.Error(err))
	}
	if s.release != nil {
		s.release()
	}
	o.mu.Lock()
	if o.active == s {
		o.active = nil
	}
	o.mu.Unlock()
	close(s.done)
}
