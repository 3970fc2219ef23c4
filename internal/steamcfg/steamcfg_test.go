package steamcfg_test

import (
	"reflect"
	"strings"
	"testing"

	"depotdeck/internal/steamcfg"
)

const existingConfig = `"InstallConfigStore"
{
	"Software"
	{
		"Valve"
		{
			"Steam"
			{
				"CellIDServerOverride"		"1"
				"depots"
				{
					"228981"
					{
						"DecryptionKey"		"old"
					}
				}
			}
		}
	}
	"Music"
	{
		"CrawlSteamInstallFolders"		"1"
	}
}
`

func TestAddDecryptionKeysOverwritesWithoutDuplicating(t *testing.T) {
	keys := []steamcfg.DepotKey{
		{DepotID: "228981", Key: "new"},
		{DepotID: "1245621", Key: "abcd"},
	}
	out, changed, err := steamcfg.AddDecryptionKeys([]byte(existingConfig), keys)
	if err != nil {
		t.Fatalf("AddDecryptionKeys returned error: %v", err)
	}
	if changed != 2 {
		t.Fatalf("expected 2 changes, got %d", changed)
	}
	if strings.Count(string(out), `"228981"`) != 1 {
		t.Fatalf("depot entry duplicated:\n%s", out)
	}
	if !strings.Contains(string(out), `"CrawlSteamInstallFolders"`) {
		t.Fatalf("unrelated sections must survive:\n%s", out)
	}
	stored, err := steamcfg.DecryptionKeys(out)
	if err != nil {
		t.Fatalf("DecryptionKeys returned error: %v", err)
	}
	want := []steamcfg.DepotKey{{DepotID: "1245621", Key: "abcd"}, {DepotID: "228981", Key: "new"}}
	if !reflect.DeepEqual(stored, want) {
		t.Fatalf("unexpected keys %#v", stored)
	}

	again, changed, err := steamcfg.AddDecryptionKeys(out, keys)
	if err != nil {
		t.Fatalf("second AddDecryptionKeys returned error: %v", err)
	}
	if changed != 0 || string(again) != string(out) {
		t.Fatalf("second write must be a no-op, changed=%d", changed)
	}
}

func TestAddDecryptionKeysEmptyFile(t *testing.T) {
	out, changed, err := steamcfg.AddDecryptionKeys(nil, []steamcfg.DepotKey{{DepotID: "10", Key: "k"}, {DepotID: "11"}})
	if err != nil {
		t.Fatalf("AddDecryptionKeys returned error: %v", err)
	}
	if changed != 1 {
		t.Fatalf("keyless depots are skipped, got %d changes", changed)
	}
	if !strings.HasPrefix(string(out), "\"InstallConfigStore\"\n{\n\t\"Software\"") {
		t.Fatalf("unexpected layout:\n%s", out)
	}
}

func TestAppManifestRoundTrip(t *testing.T) {
	manifest := steamcfg.AppManifest{
		AppID:      "1245620",
		Name:       "ELDEN RING",
		InstallDir: "ELDEN RING",
		SizeOnDisk: 4096,
		Depots:     []steamcfg.InstalledDepot{{DepotID: "1245621", ManifestID: "741", SizeBytes: 4096}},
	}
	data := manifest.Render()
	for _, want := range []string{
		"\"AppState\"\n{\n\t\"appid\"\t\t\"1245620\"\n",
		"\t\"StateFlags\"\t\t\"4\"\n",
		"\t\"SizeOnDisk\"\t\t\"4096\"\n",
		"\t\t\"platform_override_source\"\t\t\"windows\"\n",
	} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("manifest missing %q:\n%s", want, data)
		}
	}
	parsed, err := steamcfg.ParseAppManifest(data)
	if err != nil {
		t.Fatalf("ParseAppManifest returned error: %v", err)
	}
	manifest.StateFlags = steamcfg.StateFullyInstalled
	if !reflect.DeepEqual(parsed, manifest) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", parsed, manifest)
	}
}

const slsConfig = `# SLSsteam config
PlayNotOwnedGames: yes
AdditionalApps:
  # Portal
  - 400
`

func TestAdditionalAppsAddAndRemove(t *testing.T) {
	out, changed, err := steamcfg.AddAdditionalApp([]byte(slsConfig), "1245620", "ELDEN RING")
	if err != nil {
		t.Fatalf("AddAdditionalApp returned error: %v", err)
	}
	if !changed {
		t.Fatal("expected change")
	}
	for _, want := range []string{"# SLSsteam config", "PlayNotOwnedGames: yes", "# ELDEN RING", "# Portal"} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	ids, err := steamcfg.AdditionalApps(out)
	if err != nil {
		t.Fatalf("AdditionalApps returned error: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"400", "1245620"}) {
		t.Fatalf("unexpected ids %v", ids)
	}

	same, changed, err := steamcfg.AddAdditionalApp(out, "1245620", "ELDEN RING")
	if err != nil || changed || string(same) != string(out) {
		t.Fatalf("duplicate add must be a no-op (changed=%v err=%v)", changed, err)
	}

	removed, changed, err := steamcfg.RemoveAdditionalApp(out, "400")
	if err != nil || !changed {
		t.Fatalf("RemoveAdditionalApp changed=%v err=%v", changed, err)
	}
	ids, _ = steamcfg.AdditionalApps(removed)
	if !reflect.DeepEqual(ids, []string{"1245620"}) {
		t.Fatalf("unexpected ids after removal %v", ids)
	}
}

func TestAdditionalAppsCreatesSection(t *testing.T) {
	for name, content := range map[string]string{
		"empty":    "",
		"null key": "PlayNotOwnedGames: yes\nAdditionalApps:\n",
	} {
		t.Run(name, func(t *testing.T) {
			out, changed, err := steamcfg.AddAdditionalApp([]byte(content), "70", "")
			if err != nil || !changed {
				t.Fatalf("AddAdditionalApp changed=%v err=%v", changed, err)
			}
			ids, err := steamcfg.AdditionalApps(out)
			if err != nil {
				t.Fatalf("AdditionalApps returned error: %v", err)
			}
			if !reflect.DeepEqual(ids, []string{"70"}) {
				t.Fatalf("unexpected ids %v in:\n%s", ids, out)
			}
		})
	}
}

func TestRemoveAdditionalAppMissing(t *testing.T) {
	out, changed, err := steamcfg.RemoveAdditionalApp([]byte(slsConfig), "999")
	if err != nil || changed || string(out) != slsConfig {
		t.Fatalf("missing id must be a no-op (changed=%v err=%v)", changed, err)
	}
}

func TestLibraryPaths(t *testing.T) {
	current := `"libraryfolders"
{
	"0"
	{
		"path"		"/home/deck/.local/share/Steam"
		"apps"
		{
			"228980"		"0"
		}
	}
	"1"
	{
		"path"		"/run/media/mmcblk0p1"
	}
}`
	paths, err := steamcfg.LibraryPaths([]byte(current))
	if err != nil {
		t.Fatalf("LibraryPaths returned error: %v", err)
	}
	if !reflect.DeepEqual(paths, []string{"/home/deck/.local/share/Steam", "/run/media/mmcblk0p1"}) {
		t.Fatalf("unexpected paths %v", paths)
	}

	legacy := `"LibraryFolders"
{
	"TimeNextStatsReport"		"1"
	"1"		"/mnt/games"
}`
	paths, err = steamcfg.LibraryPaths([]byte(legacy))
	if err != nil {
		t.Fatalf("LibraryPaths returned error: %v", err)
	}
	if !reflect.DeepEqual(paths, []string{"/mnt/games"}) {
		t.Fatalf("unexpected legacy paths %v", paths)
	}
}

func TestPaths(t *testing.T) {
	if got := steamcfg.InstallPath("/lib", "Half-Life"); got != "/lib/steamapps/common/Half-Life" {
		t.Fatalf("unexpected install path %q", got)
	}
	if got := steamcfg.MarkerPath("/lib/steamapps/common/HL", "71", "99"); got != "/lib/steamapps/common/HL/.DepotDownloader/71_99.manifest" {
		t.Fatalf("unexpected marker path %q", got)
	}
	if got := steamcfg.AppManifestPath("/lib", "70"); got != "/lib/steamapps/appmanifest_70.acf" {
		t.Fatalf("unexpected acf path %q", got)
	}
	got := steamcfg.DedupePaths([]string{"/a", "", "/b", "/a"})
	if !reflect.DeepEqual(got, []string{"/a", "/b"}) {
		t.Fatalf("unexpected dedupe %v", got)
	}
}
