package records

import (
	"time"

	"depotdeck/internal/depot"
)

// DepotVersion is one installed depot and the manifest it was installed at.
type DepotVersion struct {
	DepotID    string `json:"depot_id"`
	ManifestID string `json:"manifest_id"`
}

// InstalledTitle records a completed install on one target.
type InstalledTitle struct {
	TargetKey   string         `json:"target_key"`
	TitleID     string         `json:"title_id"`
	TitleName   string         `json:"title_name"`
	InstallRoot string         `json:"install_root"`
	InstallDir  string         `json:"install_dir"`
	SizeBytes   uint64         `json:"size_bytes"`
	Depots      []DepotVersion `json:"depots"`
	// InstalledViaMarker is set when completion markers were written next to
	// the content.
	InstalledViaMarker bool      `json:"installed_via_marker"`
	InstalledAt        time.Time `json:"installed_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// OutdatedDepots returns the installed depots whose manifest differs from
// the catalog. Depots the catalog no longer lists are ignored.
func (t InstalledTitle) OutdatedDepots(catalog depot.Catalog) []DepotVersion {
	var stale []DepotVersion
	for _, installed := range t.Depots {
		entry, ok := catalog.Lookup(installed.DepotID)
		if !ok || entry.ManifestID == "" {
			continue
		}
		if entry.ManifestID != installed.ManifestID {
			stale = append(stale, DepotVersion{DepotID: installed.DepotID, ManifestID: entry.ManifestID})
		}
	}
	return stale
}

// Outdated reports whether any installed depot has a newer manifest.
func (t InstalledTitle) Outdated(catalog depot.Catalog) bool {
	return len(t.OutdatedDepots(catalog)) > 0
}

// Manifest returns the installed manifest for depotID.
func (t InstalledTitle) Manifest(depotID string) (string, bool) {
	for _, d := range t.Depots {
		if d.DepotID == depotID {
			return d.ManifestID, true
		}
	}
	return "", false
}
