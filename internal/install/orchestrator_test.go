package install_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"depotdeck/internal/install"
	"depotdeck/internal/progress"
	"depotdeck/internal/services"
	"depotdeck/internal/steamcfg"
	"depotdeck/internal/target"
	"depotdeck/internal/testsupport"
)

func TestStartInstallsToLocalTarget(t *testing.T) {
	fx := newFixture(t, nil)
	orch := fx.orchestrator(t)

	snap, err := startAndWait(t, orch, localSelection())
	if err != nil {
		t.Fatalf("session failed: %v (%+v)", err, snap.Err)
	}
	if snap.Phase != progress.PhaseFinished {
		t.Fatalf("expected finished, got %s", snap.Phase)
	}
	if snap.Percent() != 100 || snap.BytesDone != snap.BytesTotal {
		t.Fatalf("expected complete progress, got %d/%d", snap.BytesDone, snap.BytesTotal)
	}

	dir := fx.home.installPath()
	for _, name := range []string{"441.bin", "442.bin"} {
		if !testsupport.FileExists(filepath.Join(dir, "data", name)) {
			t.Fatalf("expected %s transferred", name)
		}
	}
	acf, err := os.ReadFile(steamcfg.AppManifestPath(fx.home.steamRoot, "440"))
	if err != nil {
		t.Fatalf("read appmanifest: %v", err)
	}
	manifest, err := steamcfg.ParseAppManifest(acf)
	if err != nil {
		t.Fatalf("parse appmanifest: %v", err)
	}
	if manifest.SizeOnDisk != 96 || manifest.InstallDir != "TestGame" {
		t.Fatalf("unexpected appmanifest: %+v", manifest)
	}
	if !testsupport.FileExists(steamcfg.MarkerPath(dir, "441", "1001")) {
		t.Fatal("expected depot marker")
	}
	vdf, err := os.ReadFile(steamcfg.ConfigVDFPath(fx.home.steamRoot))
	if err != nil {
		t.Fatalf("read config.vdf: %v", err)
	}
	keys, err := steamcfg.DecryptionKeys(vdf)
	if err != nil {
		t.Fatalf("parse keys: %v", err)
	}
	got := map[string]string{}
	for _, key := range keys {
		got[key.DepotID] = key.Key
	}
	if got["441"] != "aa11" || got["442"] != "bb22" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	record, err := fx.opts.Records.Get(context.Background(), "local", "440")
	if err != nil || record == nil {
		t.Fatalf("expected install record, got %v (err %v)", record, err)
	}
	if record.InstallRoot != fx.home.steamRoot || len(record.Depots) != 2 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if testsupport.FileExists(filepath.Join(fx.cache, "440")) {
		t.Fatal("expected cache pruned after install")
	}
	if orch.Active() {
		t.Fatal("expected session slot released")
	}
}

func TestStartRejectsSecondSession(t *testing.T) {
	fx := newFixture(t, nil)
	release := make(chan struct{})
	var once sync.Once
	fx.dl.hook = func(string, int) {
		once.Do(func() { <-release })
	}
	orch := fx.orchestrator(t)

	id, err := orch.Start(context.Background(), localSelection())
	if err != nil {
		t.Fatalf("first Start returned error: %v", err)
	}
	_, err = orch.Start(context.Background(), localSelection())
	if got := services.KindOf(err); got != services.KindSessionBusy {
		t.Fatalf("expected SessionBusy, got %v (%v)", got, err)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if _, err := orch.Wait(ctx, id); err != nil {
		t.Fatalf("first session failed: %v", err)
	}
	if _, err := startAndWait(t, orch, localSelection()); err != nil {
		t.Fatalf("second session failed: %v", err)
	}
}

func TestStartRejectsSessionHeldByOtherProcess(t *testing.T) {
	fx := newFixture(t, nil)
	first := fx.orchestrator(t)
	second := fx.orchestrator(t)

	release := make(chan struct{})
	var once sync.Once
	fx.dl.hook = func(string, int) { once.Do(func() { <-release }) }
	id, err := first.Start(context.Background(), localSelection())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer func() {
		close(release)
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_, _ = first.Wait(ctx, id)
	}()

	_, err = second.Start(context.Background(), localSelection())
	if !errors.Is(err, services.ErrSessionBusy) {
		t.Fatalf("expected lock contention to be busy, got %v", err)
	}
}

func TestStartFailsFastWhenUnreachable(t *testing.T) {
	unreachable := false
	fx := newFixture(t, func(a target.Adapter) target.Adapter {
		return &hookedAdapter{Adapter: a, reachable: &unreachable}
	})
	orch := fx.orchestrator(t)

	_, err := orch.Start(context.Background(), localSelection())
	if got := services.KindOf(err); got != services.KindTargetUnreachable {
		t.Fatalf("expected TargetUnreachable, got %v (%v)", got, err)
	}
	if calls := fx.dl.Calls(); len(calls) != 0 {
		t.Fatalf("expected no downloads, got %v", calls)
	}
	if orch.Active() {
		t.Fatal("expected no session")
	}
	if _, ok := orch.Snapshot(); ok {
		t.Fatal("expected no snapshot")
	}
}

func TestStartValidatesSelection(t *testing.T) {
	fx := newFixture(t, nil)
	orch := fx.orchestrator(t)

	empty := localSelection()
	empty.Catalog.Entries = nil
	if _, err := orch.Start(context.Background(), empty); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty selection, got %v", err)
	}

	keyless := localSelection()
	keyless.Catalog.Entries[0].Key = ""
	if _, err := orch.Start(context.Background(), keyless); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for keyless depot, got %v", err)
	}

	remote := localSelection()
	remote.Target = target.Descriptor{Kind: target.KindRemote, Host: "deck.local"}
	if _, err := orch.Start(context.Background(), remote); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for remote without user, got %v", err)
	}
}

func TestControlWithoutSession(t *testing.T) {
	fx := newFixture(t, nil)
	orch := fx.orchestrator(t)
	for name, call := range map[string]func() error{
		"pause":  orch.Pause,
		"resume": orch.Resume,
		"cancel": func() error { return orch.Cancel(false) },
	} {
		if err := call(); !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("%s: expected not found, got %v", name, err)
		}
	}
	if _, err := orch.Wait(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected unknown session, got %v", err)
	}
}

// blockingTransfer writes a partial file and parks until the session ends.
func blockingTransfer(started chan<- struct{}) func(target.Adapter) target.Adapter {
	var once sync.Once
	return func(a target.Adapter) target.Adapter {
		return &hookedAdapter{Adapter: a, transfer: func(ctx context.Context, src, dest string, gate target.Gate, report func(target.TransferProgress)) error {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dest, "partial.bin"), []byte("half"), 0o644); err != nil {
				return err
			}
			report(target.TransferProgress{BytesDone: 4})
			once.Do(func() { close(started) })
			<-ctx.Done()
			return ctx.Err()
		}}
	}
}

func TestCancelWithCleanupRemovesFiles(t *testing.T) {
	started := make(chan struct{})
	fx := newFixture(t, blockingTransfer(started))
	orch := fx.orchestrator(t)

	id, err := orch.Start(context.Background(), localSelection())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("transfer never started")
	}
	if err := orch.Cancel(true); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	snap, err := orch.Wait(ctx, id)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if snap.Phase != progress.PhaseCancelled {
		t.Fatalf("expected cancelled phase, got %s", snap.Phase)
	}
	if testsupport.FileExists(fx.home.installPath()) {
		t.Fatal("expected install dir removed")
	}
	if testsupport.FileExists(filepath.Join(fx.cache, "440")) {
		t.Fatal("expected cache removed")
	}
}

func TestCancelWithoutCleanupKeepsFiles(t *testing.T) {
	started := make(chan struct{})
	fx := newFixture(t, blockingTransfer(started))
	orch := fx.orchestrator(t)

	id, err := orch.Start(context.Background(), localSelection())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-started
	if err := orch.Cancel(false); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	snap, _ := orch.Wait(ctx, id)
	if snap.Phase != progress.PhaseCancelled {
		t.Fatalf("expected cancelled phase, got %s", snap.Phase)
	}
	if !testsupport.FileExists(filepath.Join(fx.home.installPath(), "partial.bin")) {
		t.Fatal("expected partial file kept")
	}
	if !testsupport.FileExists(filepath.Join(fx.cache, "440", "441_1001.complete")) {
		t.Fatal("expected cache kept")
	}
}

func TestCancelKeepsPreexistingInstall(t *testing.T) {
	started := make(chan struct{})
	fx := newFixture(t, blockingTransfer(started))
	existing := filepath.Join(fx.home.installPath(), "save.dat")
	testsupport.WriteText(t, existing, "progress")
	testsupport.WriteText(t, steamcfg.AppManifestPath(fx.home.steamRoot, "440"), string(steamcfg.AppManifest{
		AppID: "440", Name: "Test Game", InstallDir: "TestGame",
	}.Render()))
	orch := fx.orchestrator(t)

	id, err := orch.Start(context.Background(), localSelection())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-started
	_ = orch.Cancel(true)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, _ = orch.Wait(ctx, id)
	if !testsupport.FileExists(existing) {
		t.Fatal("expected an update's existing files to survive cleanup")
	}
}

func TestPauseResumeKeepsBytesMonotonic(t *testing.T) {
	fx := newFixture(t, nil)
	reached := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	fx.dl.steps = []float64{10, 40, 70, 100}
	fx.dl.hook = func(depotID string, step int) {
		if depotID == "441" && step == 2 {
			once.Do(func() {
				close(reached)
				<-proceed
			})
		}
	}
	orch := fx.orchestrator(t)

	id, err := orch.Start(context.Background(), localSelection())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	updates, stop, err := orch.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer stop()
	var (
		seen      []progress.Snapshot
		collected = make(chan struct{})
	)
	go func() {
		defer close(collected)
		for snap := range updates {
			seen = append(seen, snap)
		}
	}()

	<-reached
	if err := orch.Pause(); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	paused, _ := orch.Snapshot()
	if paused.Phase != progress.PhasePaused || paused.ResumePhase != progress.PhaseDownloading {
		t.Fatalf("expected paused download, got %s/%s", paused.Phase, paused.ResumePhase)
	}
	if err := orch.Pause(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected second pause rejected, got %v", err)
	}
	close(proceed)
	time.Sleep(20 * time.Millisecond)
	held, _ := orch.Snapshot()
	if held.Phase != progress.PhasePaused || held.BytesDone != paused.BytesDone {
		t.Fatalf("expected no progress while paused: %d -> %d (%s)", paused.BytesDone, held.BytesDone, held.Phase)
	}

	if err := orch.Resume(); err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	final, err := orch.Wait(ctx, id)
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
	if final.Phase != progress.PhaseFinished {
		t.Fatalf("expected finished, got %s", final.Phase)
	}
	<-collected

	last := map[progress.Phase]uint64{}
	for _, snap := range seen {
		phase := snap.Phase
		if phase == progress.PhasePaused {
			phase = snap.ResumePhase
		}
		if snap.BytesDone < last[phase] {
			t.Fatalf("bytes went backwards in %s: %d < %d", phase, snap.BytesDone, last[phase])
		}
		last[phase] = snap.BytesDone
	}
	if len(seen) == 0 || seen[len(seen)-1].Phase != progress.PhaseFinished {
		t.Fatal("expected terminal snapshot delivered to subscriber")
	}
}

func TestResumeSkipsCompletedDepots(t *testing.T) {
	fx := newFixture(t, nil)
	cached := filepath.Join(fx.cache, "440", "441_1001")
	testsupport.WriteFile(t, filepath.Join(cached, "data", "cached.bin"), 64)
	testsupport.WriteText(t, cached+".complete", "done\n")
	orch := fx.orchestrator(t)

	if _, err := startAndWait(t, orch, localSelection()); err != nil {
		t.Fatalf("session failed: %v", err)
	}
	if calls := fx.dl.Calls(); len(calls) != 1 || calls[0] != "442" {
		t.Fatalf("expected only depot 442 downloaded, got %v", calls)
	}
	if !testsupport.FileExists(filepath.Join(fx.home.installPath(), "data", "cached.bin")) {
		t.Fatal("expected cached depot transferred")
	}
}

func TestDownloadRetriesTransientFailures(t *testing.T) {
	fx := newFixture(t, nil)
	fx.dl.err = services.Wrap(services.ErrExternalTool, "download", "run", "exit 1", nil)
	fx.dl.fail["441"] = 2
	orch := fx.orchestrator(t)

	if _, err := startAndWait(t, orch, localSelection()); err != nil {
		t.Fatalf("session failed: %v", err)
	}
	if calls := fx.dl.Calls(); len(calls) != 4 {
		t.Fatalf("expected 3 attempts for 441 and 1 for 442, got %v", calls)
	}
}

func TestDownloadFailureEndsInError(t *testing.T) {
	fx := newFixture(t, nil)
	fx.dl.err = services.Wrap(services.ErrExternalTool, "download", "run", "exit 1", nil)
	fx.dl.fail["442"] = 10
	orch := fx.orchestrator(t)

	snap, err := startAndWait(t, orch, localSelection())
	if err == nil {
		t.Fatal("expected failure")
	}
	if snap.Phase != progress.PhaseError || snap.Err == nil {
		t.Fatalf("expected error snapshot, got %+v", snap)
	}
	if snap.Err.Phase != progress.PhaseDownloading {
		t.Fatalf("expected failure in downloading, got %s", snap.Err.Phase)
	}
	if calls := fx.dl.Calls(); len(calls) != 4 {
		t.Fatalf("expected 1 call for 441 and 3 for 442, got %v", calls)
	}
	if !testsupport.FileExists(filepath.Join(fx.cache, "440", "441_1001.complete")) {
		t.Fatal("expected completed depot kept for the next run")
	}
}

func TestValidationFailureIsNotRetried(t *testing.T) {
	fx := newFixture(t, nil)
	fx.dl.err = services.Wrap(services.ErrValidation, "download", "request", "bad key", nil)
	fx.dl.fail["441"] = 10
	orch := fx.orchestrator(t)

	snap, err := startAndWait(t, orch, localSelection())
	if services.KindOf(err) != services.KindValidation || snap.Err.Kind != services.KindValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if calls := fx.dl.Calls(); len(calls) != 1 {
		t.Fatalf("expected a single attempt, got %v", calls)
	}
}

func TestSteamlessFailureIsNonFatal(t *testing.T) {
	fx := newFixture(t, nil)
	stripper := &stubStripper{err: services.Wrap(services.ErrDrmStripFailed, "steamless", "run", "exit 3", nil)}
	fx.opts.Steamless = stripper
	orch := fx.orchestrator(t)

	snap, err := startAndWait(t, orch, localSelection())
	if err != nil || snap.Phase != progress.PhaseFinished {
		t.Fatalf("expected finished despite drm failure, got %s (%v)", snap.Phase, err)
	}
	if stripper.calls != 1 {
		t.Fatalf("expected one steamless run, got %d", stripper.calls)
	}
}

func TestKeepCacheLeavesDownloads(t *testing.T) {
	fx := newFixture(t, nil)
	fx.opts.KeepCache = true
	orch := fx.orchestrator(t)

	if _, err := startAndWait(t, orch, localSelection()); err != nil {
		t.Fatalf("session failed: %v", err)
	}
	if !testsupport.FileExists(filepath.Join(fx.cache, "440", "442_1002", "data", "442.bin")) {
		t.Fatal("expected cache kept")
	}
}

func TestNewRequiresDownloaderAndAdapters(t *testing.T) {
	if _, err := install.New(install.Options{CacheDir: t.TempDir()}); err == nil {
		t.Fatal("expected error without downloader")
	}
}
