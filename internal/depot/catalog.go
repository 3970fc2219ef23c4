package depot

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"depotdeck/internal/services"
	"depotdeck/internal/textutil"
)

// OS values detected from depot comments.
const (
	OSWindows = "windows"
	OSLinux   = "linux"
	OSMac     = "macos"
)

// Entry is one downloadable depot.
type Entry struct {
	DepotID    string `json:"depot_id"`
	ManifestID string `json:"manifest_id"`
	Key        string `json:"key"`
	Name       string `json:"name"`
	SizeBytes  uint64 `json:"size_bytes"`
	// Language is empty for language-agnostic depots.
	Language string `json:"language,omitempty"`
	OS       string `json:"os,omitempty"`
}

// Selectable reports whether the depot can be downloaded (it has a key).
func (e Entry) Selectable() bool {
	return strings.TrimSpace(e.Key) != ""
}

// Catalog is the ordered depot list for one title.
type Catalog struct {
	TitleID    string  `json:"title_id"`
	TitleName  string  `json:"title_name"`
	InstallDir string  `json:"install_dir,omitempty"`
	Entries    []Entry `json:"entries"`
	// Tokens maps app id to app access token from addtoken lines.
	Tokens map[string]string `json:"tokens,omitempty"`
	// ManifestFiles maps depot id to a manifest file shipped in the bundle.
	ManifestFiles map[string]string `json:"manifest_files,omitempty"`
}

// AppID returns the numeric title id, or 0 when it does not parse.
func (c Catalog) AppID() uint32 {
	id, err := strconv.ParseUint(strings.TrimSpace(c.TitleID), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(id)
}

// DisplayName returns the title name with a stable fallback.
func (c Catalog) DisplayName() string {
	if name := strings.TrimSpace(c.TitleName); name != "" {
		return name
	}
	return "App " + c.TitleID
}

// EffectiveInstallDir is the folder name under steamapps/common.
func (c Catalog) EffectiveInstallDir() string {
	if dir := textutil.PathSegment(c.InstallDir); dir != "" {
		return dir
	}
	if dir := textutil.PathSegment(c.TitleName); dir != "" {
		return dir
	}
	return "App_" + c.TitleID
}

// Lookup returns the entry for depotID.
func (c Catalog) Lookup(depotID string) (Entry, bool) {
	for _, entry := range c.Entries {
		if entry.DepotID == depotID {
			return entry, true
		}
	}
	return Entry{}, false
}

// Selectable returns the entries that carry a decryption key.
func (c Catalog) Selectable() []Entry {
	out := make([]Entry, 0, len(c.Entries))
	for _, entry := range c.Entries {
		if entry.Selectable() {
			out = append(out, entry)
		}
	}
	return out
}

// TotalSize sums the entry sizes.
func (c Catalog) TotalSize() uint64 {
	var total uint64
	for _, entry := range c.Entries {
		total += entry.SizeBytes
	}
	return total
}

// DepotIDs lists the entry ids in catalog order.
func (c Catalog) DepotIDs() []string {
	ids := make([]string, 0, len(c.Entries))
	for _, entry := range c.Entries {
		ids = append(ids, entry.DepotID)
	}
	return ids
}

// Select returns a catalog holding only the requested depots, in catalog
// order. Unknown or keyless depots are a validation error. An empty id list
// selects every selectable depot.
func (c Catalog) Select(ids []string) (Catalog, error) {
	out := c.withEntries(nil)
	if len(ids) == 0 {
		out.Entries = c.Selectable()
		return out, nil
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		entry, ok := c.Lookup(id)
		if !ok {
			return Catalog{}, services.Wrap(services.ErrValidation, "select", "", fmt.Sprintf("depot %s is not in the catalog for %s", id, c.TitleID), nil)
		}
		if !entry.Selectable() {
			return Catalog{}, services.Wrap(services.ErrValidation, "select", "", fmt.Sprintf("depot %s has no decryption key", id), nil)
		}
		wanted[id] = struct{}{}
	}
	for _, entry := range c.Entries {
		if _, ok := wanted[entry.DepotID]; ok {
			out.Entries = append(out.Entries, entry)
		}
	}
	return out, nil
}

// ForOS keeps depots built for os plus depots with no detected OS.
func (c Catalog) ForOS(os string) Catalog {
	os = strings.ToLower(strings.TrimSpace(os))
	if os == "" {
		return c.Clone()
	}
	out := c.withEntries(nil)
	for _, entry := range c.Entries {
		if entry.OS == "" || entry.OS == os {
			out.Entries = append(out.Entries, entry)
		}
	}
	return out
}

// Clone returns a deep copy.
func (c Catalog) Clone() Catalog {
	return c.withEntries(slices.Clone(c.Entries))
}

func (c Catalog) withEntries(entries []Entry) Catalog {
	out := c
	out.Entries = entries
	if c.Tokens != nil {
		out.Tokens = make(map[string]string, len(c.Tokens))
		for k, v := range c.Tokens {
			out.Tokens[k] = v
		}
	}
	if c.ManifestFiles != nil {
		out.ManifestFiles = make(map[string]string, len(c.ManifestFiles))
		for k, v := range c.ManifestFiles {
			out.ManifestFiles[k] = v
		}
	}
	return out
}
