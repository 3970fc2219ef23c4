package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"depotdeck/internal/config"
	"depotdeck/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	home       string
	steamRoot  string
}

// stubDepotDownloader writes one file per depot into its -dir argument and
// prints two progress lines.
const stubDepotDownloader = `#!/bin/sh
dir=""
depot=""
while [ $# -gt 0 ]; do
	case "$1" in
		-dir) dir="$2"; shift ;;
		-depot) depot="$2"; shift ;;
	esac
	shift
done
mkdir -p "$dir"
printf 'content-%s' "$depot" > "$dir/file-$depot.bin"
echo " 50.00% file-$depot.bin"
echo "100.00% file-$depot.bin"
`

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	home := filepath.Join(base, "home")
	steamRoot := filepath.Join(home, ".local", "share", "Steam")
	for _, dir := range []string{filepath.Join(steamRoot, "steamapps"), filepath.Join(home, ".steam")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := os.Symlink(steamRoot, filepath.Join(home, ".steam", "steam")); err != nil {
		t.Fatalf("symlink steam root: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("DEPOTDECK_API_KEY", "")

	stub := filepath.Join(base, "bin", "DepotDownloaderMod")
	if err := os.MkdirAll(filepath.Dir(stub), 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	if err := os.WriteFile(stub, []byte(stubDepotDownloader), 0o755); err != nil {
		t.Fatalf("write downloader stub: %v", err)
	}
	cfg.Tools.DepotDownloader = stub
	cfg.Tools.SteamCMD = ""
	cfg.Install.LibraryRoots = nil

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, home: home, steamRoot: steamRoot}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func newCatalogServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func writeTestBundle(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "440.zip")
	testsupport.WriteZip(t, path, map[string]string{
		"440.lua": strings.Join([]string{
			"addappid(440) -- Test Game",
			`addappid(441, 1, "aa11")`,
			`setManifestid(441, "1001", 64)`,
			`addappid(442, 1, "bb22")`,
			`setManifestid(442, "1002", 32)`,
			`addappid(443, 1, "") -- Soundtrack`,
		}, "\n"),
		"441_1001.manifest": "m1",
	})
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
