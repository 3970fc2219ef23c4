package target_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"depotdeck/internal/services"
	"depotdeck/internal/steamcfg"
	"depotdeck/internal/target"
	"depotdeck/internal/testsupport"
)

type countingGate struct {
	calls atomic.Int32
	err   error
	after int32
}

func (g *countingGate) Wait(ctx context.Context) error {
	n := g.calls.Add(1)
	if g.err != nil && n > g.after {
		return g.err
	}
	return ctx.Err()
}

type localFixture struct {
	home      string
	steamRoot string
	library   string
	slsPath   string
	adapter   *target.Local
}

func newLocalFixture(t *testing.T) localFixture {
	t.Helper()
	home := t.TempDir()
	steamReal := filepath.Join(home, ".local", "share", "Steam")
	library := filepath.Join(home, "sdcard", "SteamLibrary")
	for _, dir := range []string{steamReal, filepath.Join(steamReal, "steamapps"), library, filepath.Join(home, ".steam")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	link := filepath.Join(home, ".steam", "steam")
	if err := os.Symlink(steamReal, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	testsupport.WriteText(t, steamcfg.LibraryFoldersPath(steamReal), `"libraryfolders"
{
	"0"
	{
		"path"		"`+steamReal+`"
	}
	"1"
	{
		"path"		"`+library+`"
	}
	"2"
	{
		"path"		"`+filepath.Join(home, "unplugged")+`"
	}
}
`)
	slsPath := filepath.Join(home, ".config", "SLSsteam", "config.yaml")
	adapter, err := target.NewLocal(target.LocalOptions{SteamRoot: link, SLSsteamConfig: slsPath, BlockSize: 4})
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	return localFixture{home: home, steamRoot: steamReal, library: library, slsPath: slsPath, adapter: adapter}
}

func TestLocalListInstallRoots(t *testing.T) {
	fx := newLocalFixture(t)
	roots, err := fx.adapter.ListInstallRoots(context.Background())
	if err != nil {
		t.Fatalf("ListInstallRoots returned error: %v", err)
	}
	if len(roots) != 2 || roots[0] != fx.steamRoot || roots[1] != fx.library {
		t.Fatalf("unexpected roots %v", roots)
	}
	if got := target.PreferRoots(roots, []string{fx.library, "/nowhere"}); got[0] != fx.library || len(got) != 2 {
		t.Fatalf("unexpected preferred order %v", got)
	}
}

func TestLocalTransferCopiesTreeWithProgress(t *testing.T) {
	fx := newLocalFixture(t)
	src := filepath.Join(fx.home, "cache", "11_22")
	testsupport.WriteText(t, filepath.Join(src, "game.exe"), "0123456789")
	testsupport.WriteText(t, filepath.Join(src, "data", "pak0.pak"), "abcdef")
	dest := steamcfg.InstallPath(fx.library, "Game")

	gate := &countingGate{}
	var last target.TransferProgress
	var maxBytes uint64
	err := fx.adapter.Transfer(context.Background(), src, dest, gate, func(p target.TransferProgress) {
		if p.BytesDone < maxBytes {
			t.Errorf("bytes went backwards: %d < %d", p.BytesDone, maxBytes)
		}
		maxBytes = p.BytesDone
		last = p
	})
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if last.BytesDone != 16 || last.BytesTotal != 16 || last.FilesDone != 2 || last.FilesTotal != 2 || last.Percent != 100 {
		t.Fatalf("unexpected final progress %#v", last)
	}
	// 4-byte blocks: 3 + 2 block waits plus one wait per file.
	if calls := gate.calls.Load(); calls != 7 {
		t.Fatalf("expected 7 gate checks, got %d", calls)
	}
	data, err := os.ReadFile(filepath.Join(dest, "data", "pak0.pak"))
	if err != nil || string(data) != "abcdef" {
		t.Fatalf("unexpected copy %q (%v)", data, err)
	}
}

func TestLocalTransferStopsWhenGateCancels(t *testing.T) {
	fx := newLocalFixture(t)
	src := filepath.Join(fx.home, "cache", "11_22")
	testsupport.WriteText(t, filepath.Join(src, "big.bin"), strings.Repeat("x", 64))
	gate := &countingGate{err: services.ErrCancelled, after: 2}

	err := fx.adapter.Transfer(context.Background(), src, filepath.Join(fx.library, "steamapps", "common", "G"), gate, nil)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	info, statErr := os.Stat(filepath.Join(fx.library, "steamapps", "common", "G", "big.bin"))
	if statErr != nil {
		t.Fatalf("partial file must be left in place: %v", statErr)
	}
	if info.Size() >= 64 {
		t.Fatalf("expected a partial copy, got %d bytes", info.Size())
	}
}

func TestLocalConfigureAndRemove(t *testing.T) {
	fx := newLocalFixture(t)
	ctx := context.Background()
	manifest := filepath.Join(fx.home, "bundle", "11_22.manifest")
	testsupport.WriteText(t, manifest, "manifest-bytes")

	req := target.ConfigRequest{
		TitleID:       "10",
		TitleName:     "Counter-Strike",
		LibraryRoot:   fx.library,
		Keys:          []steamcfg.DepotKey{{DepotID: "11", Key: "deadbeef"}},
		ManifestFiles: []string{manifest},
	}
	if err := fx.adapter.WriteDepotConfig(ctx, req); err != nil {
		t.Fatalf("WriteDepotConfig returned error: %v", err)
	}
	if err := fx.adapter.WriteDepotConfig(ctx, req); err != nil {
		t.Fatalf("second WriteDepotConfig returned error: %v", err)
	}
	cfg, err := os.ReadFile(steamcfg.ConfigVDFPath(fx.steamRoot))
	if err != nil {
		t.Fatalf("read config.vdf: %v", err)
	}
	keys, err := steamcfg.DecryptionKeys(cfg)
	if err != nil || len(keys) != 1 || keys[0].Key != "deadbeef" {
		t.Fatalf("unexpected keys %#v (%v)", keys, err)
	}
	sls, err := os.ReadFile(fx.slsPath)
	if err != nil {
		t.Fatalf("read slssteam config: %v", err)
	}
	if apps, _ := steamcfg.AdditionalApps(sls); len(apps) != 1 || apps[0] != "10" {
		t.Fatalf("unexpected AdditionalApps %v", apps)
	}
	if data, err := os.ReadFile(filepath.Join(steamcfg.DepotCacheDir(fx.library), "11_22.manifest")); err != nil || string(data) != "manifest-bytes" {
		t.Fatalf("manifest not copied to depotcache: %q (%v)", data, err)
	}

	mark := target.MarkRequest{
		LibraryRoot: fx.library,
		Manifest: steamcfg.AppManifest{
			AppID: "10", Name: "Counter-Strike", InstallDir: "Half-Life", SizeOnDisk: 14,
			Depots: []steamcfg.InstalledDepot{{DepotID: "11", ManifestID: "22", SizeBytes: 14}},
		},
		ManifestFiles: map[string]string{"11": manifest},
	}
	if err := fx.adapter.MarkInstalled(ctx, mark); err != nil {
		t.Fatalf("MarkInstalled returned error: %v", err)
	}
	marker := steamcfg.MarkerPath(steamcfg.InstallPath(fx.library, "Half-Life"), "11", "22")
	if !testsupport.FileExists(marker) {
		t.Fatalf("expected marker at %s", marker)
	}
	acf, err := fx.adapter.ReadAppManifest(ctx, "10", fx.library)
	if err != nil {
		t.Fatalf("ReadAppManifest returned error: %v", err)
	}
	if acf.InstallDir != "Half-Life" || acf.SizeOnDisk != 14 {
		t.Fatalf("unexpected appmanifest %#v", acf)
	}

	if err := fx.adapter.RemoveTitleConfig(ctx, "10", fx.library); err != nil {
		t.Fatalf("RemoveTitleConfig returned error: %v", err)
	}
	if _, err := fx.adapter.ReadAppManifest(ctx, "10", fx.library); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
	sls, _ = os.ReadFile(fx.slsPath)
	if apps, _ := steamcfg.AdditionalApps(sls); len(apps) != 0 {
		t.Fatalf("expected empty AdditionalApps, got %v", apps)
	}
}

func TestLocalRemoveTreeRefusesShallowPaths(t *testing.T) {
	fx := newLocalFixture(t)
	if err := fx.adapter.RemoveTree(context.Background(), "/home"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	dir := steamcfg.InstallPath(fx.library, "Gone")
	testsupport.WriteText(t, filepath.Join(dir, "a.txt"), "a")
	if err := fx.adapter.RemoveTree(context.Background(), dir); err != nil {
		t.Fatalf("RemoveTree returned error: %v", err)
	}
	if testsupport.FileExists(dir) {
		t.Fatal("expected tree removed")
	}
}

func TestLocalFreeSpaceWalksToExistingParent(t *testing.T) {
	fx := newLocalFixture(t)
	free, err := fx.adapter.FreeSpace(context.Background(), filepath.Join(fx.library, "not", "yet", "created"))
	if err != nil {
		t.Fatalf("FreeSpace returned error: %v", err)
	}
	if free == 0 {
		t.Fatal("expected free space on the temp filesystem")
	}
	if !fx.adapter.TestReachable(context.Background()) {
		t.Fatal("local target is always reachable")
	}
}

func TestLocalExists(t *testing.T) {
	fx := newLocalFixture(t)
	dir := steamcfg.InstallPath(fx.library, "Present")
	testsupport.WriteText(t, filepath.Join(dir, "a.txt"), "a")
	for path, want := range map[string]bool{
		dir: true,
		steamcfg.InstallPath(fx.library, "Absent"): false,
	} {
		got, err := fx.adapter.Exists(context.Background(), path)
		if err != nil || got != want {
			t.Fatalf("Exists(%s) = %v, %v; want %v", path, got, err, want)
		}
	}
}

func TestDescriptorKeyAndValidate(t *testing.T) {
	if got := target.LocalDescriptor().Key(); got != "local" {
		t.Fatalf("unexpected local key %q", got)
	}
	remote := target.Descriptor{Kind: target.KindRemote, Host: "steamdeck", User: "deck"}
	if got := remote.Key(); got != "deck@steamdeck:22" {
		t.Fatalf("unexpected remote key %q", got)
	}
	if err := remote.Validate(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected missing-credential validation error, got %v", err)
	}
	remote.Password = "pw"
	if err := remote.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}
