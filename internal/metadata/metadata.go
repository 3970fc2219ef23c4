package metadata

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"depotdeck/internal/services"
)

// Depot is the store's view of one depot.
type Depot struct {
	Name       string
	Language   string
	OS         string
	ManifestID string
	SizeBytes  uint64
}

// Title is the store's view of an app.
type Title struct {
	TitleID    string
	Name       string
	InstallDir string
	Depots     map[string]Depot
	// Languages lists languages the app advertises beyond depot tags.
	Languages []string
}

// Source fetches metadata for a title.
type Source interface {
	Title(ctx context.Context, titleID string) (Title, error)
}

// Chain tries each source in order and returns the first success.
type Chain []Source

// Title implements Source.
func (c Chain) Title(ctx context.Context, titleID string) (Title, error) {
	var errs []error
	for _, source := range c {
		if source == nil {
			continue
		}
		title, err := source.Title(ctx, titleID)
		if err == nil {
			return title, nil
		}
		if ctx.Err() != nil {
			return Title{}, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Title{}, services.Wrap(services.ErrMetadataFetchFailed, "metadata", "lookup", "no metadata source configured", nil)
	}
	return Title{}, services.Wrap(services.ErrMetadataFetchFailed, "metadata", "lookup", "all sources failed for "+titleID, errors.Join(errs...))
}

// Cached memoises successful lookups. Entries are never evicted or replaced.
type Cached struct {
	source Source
	mu     sync.RWMutex
	titles map[string]Title
}

// NewCached wraps source with an append-only cache.
func NewCached(source Source) *Cached {
	return &Cached{source: source, titles: make(map[string]Title)}
}

// Title implements Source.
func (c *Cached) Title(ctx context.Context, titleID string) (Title, error) {
	c.mu.RLock()
	title, ok := c.titles[titleID]
	c.mu.RUnlock()
	if ok {
		return title, nil
	}
	title, err := c.source.Title(ctx, titleID)
	if err != nil {
		return Title{}, err
	}
	c.mu.Lock()
	if existing, ok := c.titles[titleID]; ok {
		title = existing
	} else {
		c.titles[titleID] = title
	}
	c.mu.Unlock()
	return title, nil
}

// Len reports how many titles are cached.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.titles)
}

// DepotLanguages returns the distinct non-empty depot language tags plus the
// advertised languages, sorted.
func (t Title) DepotLanguages() []string {
	seen := make(map[string]struct{})
	for _, depot := range t.Depots {
		if lang := strings.TrimSpace(depot.Language); lang != "" {
			seen[lang] = struct{}{}
		}
	}
	for _, lang := range t.Languages {
		if lang = strings.TrimSpace(lang); lang != "" {
			seen[lang] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for lang := range seen {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
