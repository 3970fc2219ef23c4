package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"depotdeck/internal/depot"
	"depotdeck/internal/fileutil"
)

const completeSuffix = ".complete"

// cacheLayout maps a title's depots onto the local download cache:
// {root}/{title}/{depot}_{manifest} with a sibling .complete marker.
type cacheLayout struct {
	root string
}

func (c cacheLayout) titleDir(titleID string) string {
	return filepath.Join(c.root, titleID)
}

func (c cacheLayout) depotDir(titleID string, entry depot.Entry) string {
	return filepath.Join(c.titleDir(titleID), entry.DepotID+"_"+entry.ManifestID)
}

func (c cacheLayout) manifestDir(titleID string) string {
	return filepath.Join(c.titleDir(titleID), "manifests")
}

func (c cacheLayout) completeMarker(titleID string, entry depot.Entry) string {
	return c.depotDir(titleID, entry) + completeSuffix
}

func (c cacheLayout) isComplete(titleID string, entry depot.Entry) bool {
	return fileutil.Exists(c.completeMarker(titleID, entry))
}

func (c cacheLayout) markComplete(titleID string, entry depot.Entry) error {
	marker := c.completeMarker(titleID, entry)
	stamp := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	if err := os.WriteFile(marker, stamp, 0o644); err != nil {
		return fmt.Errorf("write cache marker: %w", err)
	}
	return nil
}

// stageManifests copies bundle-shipped manifests into the cache so the
// session does not depend on the caller's extraction dir. The returned map
// is keyed by depot id.
func (c cacheLayout) stageManifests(catalog depot.Catalog) (map[string]string, error) {
	if len(catalog.ManifestFiles) == 0 {
		return nil, nil
	}
	dir := c.manifestDir(catalog.TitleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create manifest cache: %w", err)
	}
	staged := make(map[string]string, len(catalog.ManifestFiles))
	for _, entry := range catalog.Entries {
		src, ok := catalog.ManifestFiles[entry.DepotID]
		if !ok || src == "" {
			continue
		}
		dst := filepath.Join(dir, filepath.Base(src))
		if src != dst {
			if err := fileutil.CopyFile(src, dst); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("stage manifest %s: %w", filepath.Base(src), err)
			}
		}
		staged[entry.DepotID] = dst
	}
	return staged, nil
}

func (c cacheLayout) prune(titleID string) error {
	return os.RemoveAll(c.titleDir(titleID))
}
