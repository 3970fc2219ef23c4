package steamless

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

const (
	maxSearchDepth = 3
	minExeSize     = 100 * 1024
)

// Executable is a candidate binary with its ranking score.
type Executable struct {
	Path     string
	Name     string
	Size     int64
	Priority int
}

var skipPatterns = []string{
	"unins", "setup", "config", "launcher", "updater", "patch", "redist",
	"vcredist", "dxsetup", "physx", "crash", "handler", "unity", ".original.",
	".unpacked.",
}

var mainExeNames = []string{"game.exe", "main.exe", "play.exe", "start.exe"}

// FindExecutables walks root (three levels deep) and returns .exe files
// ordered by descending priority. Installers, launchers, crash handlers and
// files under 100 KiB are skipped.
func FindExecutables(root, titleName string) ([]Executable, error) {
	root = filepath.Clean(root)
	baseDepth := strings.Count(root, string(filepath.Separator))
	var found []Executable
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		depth := strings.Count(path, string(filepath.Separator)) - baseDepth
		if d.IsDir() {
			if depth >= maxSearchDepth {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".exe") {
			return nil
		}
		for _, pattern := range skipPatterns {
			if strings.Contains(lower, pattern) {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil || info.Size() < minExeSize {
			return nil
		}
		found = append(found, Executable{
			Path:     path,
			Name:     name,
			Size:     info.Size(),
			Priority: Priority(name, titleName, info.Size()),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(found, func(a, b Executable) int {
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		if a.Size != b.Size {
			if a.Size > b.Size {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Path, b.Path)
	})
	return found, nil
}

// Priority scores a file name against the title name. Higher is more likely
// the main executable; the result is never negative.
func Priority(fileName, titleName string, size int64) int {
	lower := strings.ToLower(fileName)
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, titleName)

	score := 0
	if clean != "" {
		switch {
		case strings.HasPrefix(lower, clean):
			score += 100
		case strings.Contains(lower, clean):
			score += 80
		}
	}
	if slices.Contains(mainExeNames, lower) {
		score += 50
	}
	switch {
	case size > 50<<20:
		score += 30
	case size > 10<<20:
		score += 20
	case size > 5<<20:
		score += 10
	}
	if containsAny(lower, "editor", "tool", "config", "settings") {
		score -= 20
	}
	if containsAny(lower, "crash", "handler", "debug") {
		score -= 50
	}
	return max(score, 0)
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
