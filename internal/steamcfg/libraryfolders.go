package steamcfg

import (
	"fmt"

	"depotdeck/internal/vdf"
)

// LibraryPaths returns the library paths in libraryfolders.vdf content in file
// order. Both the current layout ("0" { "path" "…" }) and the legacy flat
// layout ("1" "…") are read.
func LibraryPaths(content []byte) ([]string, error) {
	root, err := vdf.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse libraryfolders.vdf: %w", err)
	}
	folders := root.Child("libraryfolders")
	if folders == nil {
		folders = root.Child("LibraryFolders")
	}
	if folders == nil {
		return nil, nil
	}
	var paths []string
	for _, entry := range folders.Children {
		if !isDigits(entry.Key) {
			continue
		}
		if entry.IsSection() {
			if p := entry.String("path"); p != "" {
				paths = append(paths, p)
			}
			continue
		}
		if entry.Value != "" {
			paths = append(paths, entry.Value)
		}
	}
	return paths, nil
}

// DedupePaths keeps the first occurrence of each path, dropping empties.
func DedupePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
