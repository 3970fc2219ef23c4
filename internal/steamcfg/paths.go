package steamcfg

import (
	"fmt"
	"path"
)

const (
	// SteamRootLink is the per-user symlink to the client install.
	SteamRootLink = "~/.steam/steam"
	// DefaultSLSsteamConfig is where SLSsteam reads its app list.
	DefaultSLSsteamConfig = "~/.config/SLSsteam/config.yaml"
	markerDir             = ".DepotDownloader"
)

// SteamappsDir returns {root}/steamapps.
func SteamappsDir(libraryRoot string) string {
	return path.Join(libraryRoot, "steamapps")
}

// InstallPath returns {root}/steamapps/common/{installDir}.
func InstallPath(libraryRoot, installDir string) string {
	return path.Join(libraryRoot, "steamapps", "common", installDir)
}

// DepotCacheDir returns {root}/steamapps/depotcache.
func DepotCacheDir(libraryRoot string) string {
	return path.Join(libraryRoot, "steamapps", "depotcache")
}

// AppManifestName returns appmanifest_{appID}.acf.
func AppManifestName(appID string) string {
	return fmt.Sprintf("appmanifest_%s.acf", appID)
}

// AppManifestPath returns {root}/steamapps/appmanifest_{appID}.acf.
func AppManifestPath(libraryRoot, appID string) string {
	return path.Join(SteamappsDir(libraryRoot), AppManifestName(appID))
}

// ConfigVDFPath returns the client's config/config.vdf under steamRoot.
func ConfigVDFPath(steamRoot string) string {
	return path.Join(steamRoot, "config", "config.vdf")
}

// LibraryFoldersPath returns steamapps/libraryfolders.vdf under steamRoot.
func LibraryFoldersPath(steamRoot string) string {
	return path.Join(steamRoot, "steamapps", "libraryfolders.vdf")
}

// MarkerName returns {depot}_{manifest}.manifest.
func MarkerName(depotID, manifestID string) string {
	return fmt.Sprintf("%s_%s.manifest", depotID, manifestID)
}

// MarkerPath returns the downloader's completion marker inside an install.
func MarkerPath(installPath, depotID, manifestID string) string {
	return path.Join(installPath, markerDir, MarkerName(depotID, manifestID))
}
