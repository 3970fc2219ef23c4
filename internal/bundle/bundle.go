package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"depotdeck/internal/services"
)

// InfoFileName is the alternate JSON catalog some bundles ship.
const InfoFileName = "info.json"

var maxEntrySize int64 = 512 << 20

// Extracted describes a bundle unpacked into Dir.
type Extracted struct {
	Dir           string
	ScriptPaths   []string
	ManifestPaths map[string]string
	InfoPath      string
}

// Cleanup removes the scratch directory. Safe to call on nil.
func (e *Extracted) Cleanup() {
	if e == nil || e.Dir == "" {
		return
	}
	_ = os.RemoveAll(e.Dir)
}

// Empty reports whether no recognised files were found.
func (e *Extracted) Empty() bool {
	return len(e.ScriptPaths) == 0 && len(e.ManifestPaths) == 0 && e.InfoPath == ""
}

// Extract unpacks bundlePath into a fresh temp directory under os.TempDir.
func Extract(bundlePath string) (*Extracted, error) {
	return ExtractTo(bundlePath, "")
}

// ExtractTo unpacks bundlePath into a fresh directory created inside parent
// (os.TempDir when empty).
func ExtractTo(bundlePath, parent string) (*Extracted, error) {
	reader, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, services.Wrap(services.ErrCorruptArchive, "bundle", "open", filepath.Base(bundlePath), err)
	}
	defer reader.Close()

	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch parent: %w", err)
		}
	}
	dir, err := os.MkdirTemp(parent, "depotdeck-bundle-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	out := &Extracted{Dir: dir, ManifestPaths: make(map[string]string)}
	ok := false
	defer func() {
		if !ok {
			out.Cleanup()
		}
	}()

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		if !withinRoot(file.Name) {
			return nil, services.Wrap(services.ErrCorruptArchive, "bundle", "extract", "entry escapes archive root: "+file.Name, nil)
		}
		name := path.Base(strings.ReplaceAll(file.Name, "\\", "/"))
		kind := classify(name)
		if kind == kindUnknown {
			continue
		}
		dest := filepath.Join(dir, name)
		if err := extractFile(file, dest); err != nil {
			return nil, services.Wrap(services.ErrCorruptArchive, "bundle", "extract", file.Name, err)
		}
		switch kind {
		case kindScript:
			out.ScriptPaths = append(out.ScriptPaths, dest)
		case kindManifest:
			if depotID := ManifestDepotID(name); depotID != "" {
				out.ManifestPaths[depotID] = dest
			}
		case kindInfo:
			out.InfoPath = dest
		}
	}

	if out.Empty() {
		return nil, services.Wrap(services.ErrEmptyBundle, "bundle", "extract", "no .lua, .manifest or info.json entries", nil)
	}
	sort.Strings(out.ScriptPaths)
	ok = true
	return out, nil
}

// ManifestDepotID returns the depot id prefix of a `{depot}_{manifest}.manifest`
// file name, or "" when the name does not follow that shape.
func ManifestDepotID(name string) string {
	depotID, _, ok := SplitManifestName(name)
	if !ok {
		return ""
	}
	return depotID
}

// SplitManifestName parses `{depot}_{manifest}.manifest`.
func SplitManifestName(name string) (depotID, manifestID string, ok bool) {
	base := strings.TrimSuffix(filepath.Base(name), ".manifest")
	depotID, manifestID, found := strings.Cut(base, "_")
	if !found || depotID == "" || !isDigits(depotID) {
		return "", "", false
	}
	return depotID, manifestID, true
}

type entryKind int

const (
	kindUnknown entryKind = iota
	kindScript
	kindManifest
	kindInfo
)

func classify(name string) entryKind {
	lower := strings.ToLower(name)
	switch {
	case lower == InfoFileName:
		return kindInfo
	case strings.HasSuffix(lower, ".lua"):
		return kindScript
	case strings.HasSuffix(lower, ".manifest"):
		return kindManifest
	default:
		return kindUnknown
	}
}

func withinRoot(name string) bool {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return false
	}
	cleaned := path.Clean(name)
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}

func extractFile(file *zip.File, dest string) error {
	if file.UncompressedSize64 > uint64(maxEntrySize) {
		return fmt.Errorf("entry too large: %d bytes", file.UncompressedSize64)
	}
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	// Headers can understate the entry size.
	written, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return err
	}
	if written > maxEntrySize {
		return fmt.Errorf("entry exceeds %d bytes", maxEntrySize)
	}
	return out.Close()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
