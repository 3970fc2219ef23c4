package main

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"depotdeck/internal/records"
	"depotdeck/internal/steamcfg"
	"depotdeck/internal/testsupport"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !testsupport.FileExists(target) {
		t.Fatalf("expected sample config at %s", target)
	}
	requireContains(t, stdout, target)

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestConfigValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	stdout, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, stdout, "valid")

	broken := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(broken, []byte("[logging]\nformat = \"xml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "validate"}, broken); err == nil {
		t.Fatal("expected validation error for bad logging format")
	}
}

func TestConfigShowMasksPassword(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithRemote("deck.local", 2222))
	stdout, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, stdout, "deck.local")
	requireContains(t, stdout, "2222")
	requireContains(t, stdout, redacted)
	if strings.Contains(stdout, "secret") {
		t.Fatalf("password leaked into config show output:\n%s", stdout)
	}
}

func TestResolveListsDepots(t *testing.T) {
	env := setupCLITestEnv(t)
	bundlePath := writeTestBundle(t, t.TempDir())

	stdout, _, err := runCLI(t, []string{"resolve", bundlePath}, env.configPath)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	requireContains(t, stdout, "Test Game (440)")
	requireContains(t, stdout, "441")
	requireContains(t, stdout, "3 depots (2 with keys)")

	stdout, _, err = runCLI(t, []string{"resolve", "--json", bundlePath}, env.configPath)
	if err != nil {
		t.Fatalf("resolve --json: %v", err)
	}
	var decoded struct {
		TitleID string `json:"title_id"`
		Entries []struct {
			DepotID    string `json:"depot_id"`
			ManifestID string `json:"manifest_id"`
		} `json:"entries"`
	}
	if err := json.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("decode json: %v\n%s", err, stdout)
	}
	if decoded.TitleID != "440" || len(decoded.Entries) != 3 || decoded.Entries[0].ManifestID != "1001" {
		t.Fatalf("unexpected catalog %+v", decoded)
	}
}

func TestResolveRejectsEmptyBundle(t *testing.T) {
	env := setupCLITestEnv(t)
	bundlePath := filepath.Join(t.TempDir(), "empty.zip")
	testsupport.WriteZip(t, bundlePath, map[string]string{"readme.txt": "nothing"})

	if _, _, err := runCLI(t, []string{"resolve", bundlePath}, env.configPath); err == nil {
		t.Fatal("expected error for a bundle without depot files")
	}
}

func TestCatalogSearchAndQuota(t *testing.T) {
	server := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/search":
			_, _ = w.Write([]byte(`{"results":[{"game_id":"440","game_name":"Test Game","manifest_available":true,"manifest_size":2048}]}`))
		case "/api/v1/user/stats":
			_, _ = w.Write([]byte(`{"user_id":"u1","username":"deck","api_key_usage_count":1200,"daily_usage":5,"daily_limit":25,"can_make_requests":true}`))
		case "/api/v1/health":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	env := setupCLITestEnv(t, testsupport.WithCatalogURL(server.URL), testsupport.WithAPIKey("secret"))

	stdout, _, err := runCLI(t, []string{"catalog", "search", "test", "game"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog search: %v", err)
	}
	requireContains(t, stdout, "Test Game")
	requireContains(t, stdout, "2.0 KiB")

	stdout, _, err = runCLI(t, []string{"catalog", "quota"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog quota: %v", err)
	}
	requireContains(t, stdout, "5 of 25 requests")
	requireContains(t, stdout, "Remaining: 20")
	requireContains(t, stdout, "1,200 requests")

	stdout, _, err = runCLI(t, []string{"catalog", "health"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog health: %v", err)
	}
	requireContains(t, stdout, "healthy")
}

func TestFetchRequiresAPIKey(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAPIKey(""))
	_, _, err := runCLI(t, []string{"fetch", "440"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}

func TestListEmptyStore(t *testing.T) {
	env := setupCLITestEnv(t)
	stdout, _, err := runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, stdout, "No titles installed")

	if _, _, err := runCLI(t, []string{"list", "--remote"}, env.configPath); err == nil {
		t.Fatal("expected error listing a remote target that is not configured")
	}
}

func TestRootsListsLocalLibrary(t *testing.T) {
	env := setupCLITestEnv(t)
	stdout, _, err := runCLI(t, []string{"roots"}, env.configPath)
	if err != nil {
		t.Fatalf("roots: %v", err)
	}
	requireContains(t, stdout, env.steamRoot)

	stdout, _, err = runCLI(t, []string{"target", "test"}, env.configPath)
	if err != nil {
		t.Fatalf("target test: %v", err)
	}
	requireContains(t, stdout, "[OK]")
}

func TestInstallListUninstallRoundTrip(t *testing.T) {
	env := setupCLITestEnv(t)
	bundlePath := writeTestBundle(t, t.TempDir())

	stdout, _, err := runCLI(t, []string{"install", "--bundle", bundlePath, "--all-languages"}, env.configPath)
	if err != nil {
		t.Fatalf("install: %v\n%s", err, stdout)
	}
	requireContains(t, stdout, "Installed Test Game (440)")

	manifest, err := os.ReadFile(steamcfg.AppManifestPath(env.steamRoot, "440"))
	if err != nil {
		t.Fatalf("read app manifest: %v", err)
	}
	parsed, err := steamcfg.ParseAppManifest(manifest)
	if err != nil {
		t.Fatalf("parse app manifest: %v", err)
	}
	installPath := steamcfg.InstallPath(env.steamRoot, parsed.InstallDir)
	for _, name := range []string{"file-441.bin", "file-442.bin"} {
		if !testsupport.FileExists(filepath.Join(installPath, name)) {
			t.Fatalf("expected %s in %s", name, installPath)
		}
	}

	stdout, _, err = runCLI(t, []string{"list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var listed []records.InstalledTitle
	if err := json.Unmarshal([]byte(stdout), &listed); err != nil {
		t.Fatalf("decode list: %v\n%s", err, stdout)
	}
	if len(listed) != 1 || listed[0].TitleID != "440" || len(listed[0].Depots) != 2 {
		t.Fatalf("unexpected records %+v", listed)
	}

	if _, _, err := runCLI(t, []string{"uninstall", "440"}, env.configPath); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if testsupport.FileExists(installPath) {
		t.Fatalf("expected %s removed", installPath)
	}
	stdout, _, err = runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list after uninstall: %v", err)
	}
	requireContains(t, stdout, "No titles installed")
}

func TestInstallRejectsUnknownDepot(t *testing.T) {
	env := setupCLITestEnv(t)
	bundlePath := writeTestBundle(t, t.TempDir())

	_, _, err := runCLI(t, []string{"install", "--bundle", bundlePath, "--all-languages", "--depots", "999"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "999") {
		t.Fatalf("expected unknown depot error, got %v", err)
	}
}

func TestDoctorReportsChecks(t *testing.T) {
	server := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/health":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/user/stats":
			_, _ = w.Write([]byte(`{"daily_usage":1,"daily_limit":25,"can_make_requests":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	env := setupCLITestEnv(t, testsupport.WithCatalogURL(server.URL))

	stdout, _, _ := runCLI(t, []string{"doctor"}, env.configPath)
	requireContains(t, stdout, "depotdeck doctor")
	requireContains(t, stdout, "Cache directory")
	requireContains(t, stdout, "DepotDownloaderMod")
	requireContains(t, stdout, "Target local")
}
