package steamcfg

import (
	"fmt"
	"strconv"

	"depotdeck/internal/vdf"
)

// StateFullyInstalled is the StateFlags value of a complete install.
const StateFullyInstalled = "4"

// InstalledDepot is one entry of an ACF InstalledDepots section.
type InstalledDepot struct {
	DepotID    string
	ManifestID string
	SizeBytes  uint64
}

// AppManifest holds the appmanifest fields the client needs to list a title.
type AppManifest struct {
	AppID      string
	Name       string
	InstallDir string
	SizeOnDisk uint64
	StateFlags string
	Depots     []InstalledDepot
}

// Render produces the appmanifest_{app}.acf content. Titles are flagged fully
// installed and mapped to run through the Windows compatibility layer.
func (m AppManifest) Render() []byte {
	state := m.StateFlags
	if state == "" {
		state = StateFullyInstalled
	}
	app := vdf.NewSection("AppState")
	app.Set("appid", m.AppID)
	app.Set("Universe", "1")
	app.Set("name", m.Name)
	app.Set("StateFlags", state)
	app.Set("installdir", m.InstallDir)
	app.Set("SizeOnDisk", strconv.FormatUint(m.SizeOnDisk, 10))
	app.Set("buildid", "0")
	depots := app.Ensure("InstalledDepots")
	for _, depot := range m.Depots {
		entry := depots.Ensure(depot.DepotID)
		entry.Set("manifest", depot.ManifestID)
		entry.Set("size", strconv.FormatUint(depot.SizeBytes, 10))
	}
	for _, section := range []string{"UserConfig", "MountedConfig"} {
		cfg := app.Ensure(section)
		cfg.Set("platform_override_dest", "linux")
		cfg.Set("platform_override_source", "windows")
	}
	return vdf.Format(app)
}

// ParseAppManifest reads an appmanifest file.
func ParseAppManifest(data []byte) (AppManifest, error) {
	root, err := vdf.Parse(data)
	if err != nil {
		return AppManifest{}, fmt.Errorf("parse appmanifest: %w", err)
	}
	app := root.Child("AppState")
	if app == nil {
		return AppManifest{}, fmt.Errorf("parse appmanifest: %w: missing AppState", vdf.ErrSyntax)
	}
	manifest := AppManifest{
		AppID:      app.String("appid"),
		Name:       app.String("name"),
		InstallDir: app.String("installdir"),
		StateFlags: app.String("StateFlags"),
	}
	manifest.SizeOnDisk, _ = strconv.ParseUint(app.String("SizeOnDisk"), 10, 64)
	if depots := app.Child("InstalledDepots"); depots != nil {
		for _, entry := range depots.Children {
			size, _ := strconv.ParseUint(entry.String("size"), 10, 64)
			manifest.Depots = append(manifest.Depots, InstalledDepot{
				DepotID:    entry.Key,
				ManifestID: entry.String("manifest"),
				SizeBytes:  size,
			})
		}
	}
	return manifest, nil
}
