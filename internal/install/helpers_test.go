package install_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"depotdeck/internal/depot"
	"depotdeck/internal/downloader"
	"depotdeck/internal/install"
	"depotdeck/internal/progress"
	"depotdeck/internal/steamcfg"
	"depotdeck/internal/steamless"
	"depotdeck/internal/target"
	"depotdeck/internal/testsupport"
)

const waitTimeout = 10 * time.Second

func testCatalog() depot.Catalog {
	return depot.Catalog{
		TitleID:    "440",
		TitleName:  "Test Game",
		InstallDir: "TestGame",
		Entries: []depot.Entry{
			{DepotID: "441", ManifestID: "1001", Key: "aa11", Name: "content", SizeBytes: 64},
			{DepotID: "442", ManifestID: "1002", Key: "bb22", Name: "english", SizeBytes: 32, Language: "english"},
		},
	}
}

// stubDownloader writes one file per depot sized to the entry and reports
// percent steps through the callback.
type stubDownloader struct {
	mu    sync.Mutex
	calls []string
	sizes map[string]int64
	steps []float64
	// fail returns an error for the given depot while the count is positive.
	fail map[string]int
	err  error
	// hook runs before every progress step.
	hook func(depotID string, step int)
}

func newStubDownloader(catalog depot.Catalog) *stubDownloader {
	sizes := make(map[string]int64, len(catalog.Entries))
	for _, entry := range catalog.Entries {
		sizes[entry.DepotID] = int64(entry.SizeBytes)
	}
	return &stubDownloader{sizes: sizes, steps: []float64{25, 50, 100}, fail: map[string]int{}}
}

func (d *stubDownloader) Download(ctx context.Context, req downloader.Request, onProgress func(downloader.Progress) error) error {
	d.mu.Lock()
	d.calls = append(d.calls, req.DepotID)
	failing := d.fail[req.DepotID] > 0
	if failing {
		d.fail[req.DepotID]--
	}
	d.mu.Unlock()
	if failing {
		return d.err
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return err
	}
	for i, pct := range d.steps {
		if d.hook != nil {
			d.hook(req.DepotID, i)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onProgress(downloader.Progress{Percent: pct}); err != nil {
			return err
		}
	}
	path := filepath.Join(req.Dir, "data", req.DepotID+".bin")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, make([]byte, d.sizes[req.DepotID]), 0o644)
}

func (d *stubDownloader) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type stubStripper struct {
	err   error
	calls int
}

func (s *stubStripper) Process(ctx context.Context, gameDir, titleName string) (steamless.Result, error) {
	s.calls++
	return steamless.Result{}, s.err
}

type localHome struct {
	home      string
	steamRoot string
	slsPath   string
}

func (h localHome) installPath() string {
	return steamcfg.InstallPath(h.steamRoot, "TestGame")
}

func newLocalHome(t *testing.T) localHome {
	t.Helper()
	home := t.TempDir()
	steamReal := filepath.Join(home, ".local", "share", "Steam")
	for _, dir := range []string{filepath.Join(steamReal, "steamapps"), filepath.Join(home, ".steam")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := os.Symlink(steamReal, filepath.Join(home, ".steam", "steam")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	return localHome{
		home:      home,
		steamRoot: steamReal,
		slsPath:   filepath.Join(home, ".config", "SLSsteam", "config.yaml"),
	}
}

// localFactory opens Local adapters on h, optionally wrapped.
func localFactory(t *testing.T, h localHome, wrap func(target.Adapter) target.Adapter) install.AdapterFactory {
	return func(target.Descriptor) (target.Adapter, error) {
		adapter, err := target.NewLocal(target.LocalOptions{
			SteamRoot:      filepath.Join(h.home, ".steam", "steam"),
			SLSsteamConfig: h.slsPath,
			BlockSize:      8,
		})
		if err != nil {
			return nil, err
		}
		if wrap != nil {
			return wrap(adapter), nil
		}
		return adapter, nil
	}
}

// hookedAdapter overrides parts of a real adapter.
type hookedAdapter struct {
	target.Adapter
	reachable *bool
	transfer  func(ctx context.Context, src, dest string, gate target.Gate, progress func(target.TransferProgress)) error
	mark      func(ctx context.Context, req target.MarkRequest) error
}

func (a *hookedAdapter) MarkInstalled(ctx context.Context, req target.MarkRequest) error {
	if a.mark != nil {
		return a.mark(ctx, req)
	}
	return a.Adapter.MarkInstalled(ctx, req)
}

func (a *hookedAdapter) TestReachable(ctx context.Context) bool {
	if a.reachable != nil {
		return *a.reachable
	}
	return a.Adapter.TestReachable(ctx)
}

func (a *hookedAdapter) Transfer(ctx context.Context, src, dest string, gate target.Gate, progress func(target.TransferProgress)) error {
	if a.transfer != nil {
		return a.transfer(ctx, src, dest, gate, progress)
	}
	return a.Adapter.Transfer(ctx, src, dest, gate, progress)
}

type fixture struct {
	home  localHome
	cache string
	dl    *stubDownloader
	opts  install.Options
}

func newFixture(t *testing.T, wrap func(target.Adapter) target.Adapter) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := newLocalHome(t)
	dl := newStubDownloader(testCatalog())
	return &fixture{
		home:  h,
		cache: cfg.DepotCacheDir(),
		dl:    dl,
		opts: install.Options{
			CacheDir:         cfg.DepotCacheDir(),
			Retries:          2,
			ProgressInterval: time.Millisecond,
			LockPath:         cfg.LockPath(),
			Downloader:       dl,
			Records:          testsupport.MustOpenStore(t, cfg),
			Adapters:         localFactory(t, h, wrap),
		},
	}
}

func (f *fixture) orchestrator(t *testing.T) *install.Orchestrator {
	t.Helper()
	orch, err := install.New(f.opts)
	if err != nil {
		t.Fatalf("install.New: %v", err)
	}
	return orch
}

func startAndWait(t *testing.T, orch *install.Orchestrator, sel install.Selection) (progress.Snapshot, error) {
	t.Helper()
	id, err := orch.Start(context.Background(), sel)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return orch.Wait(ctx, id)
}

func localSelection() install.Selection {
	return install.Selection{Catalog: testCatalog(), Target: target.LocalDescriptor()}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
