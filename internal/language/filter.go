package language

import (
	"context"
	"sort"

	"depotdeck/internal/depot"
	"depotdeck/internal/metadata"
	"depotdeck/internal/services"
)

// SkipFilter disables language filtering.
const SkipFilter = "All (Skip Filter)"

// FilterResult describes how a filtered catalog was produced.
type FilterResult struct {
	Language string
	// Tagged counts depots carrying the requested language.
	Tagged int
	// Agnostic counts depots with no language tag.
	Agnostic int
	// FellBack is set when no depot carried the language and the whole
	// catalog was returned instead.
	FellBack bool
	Skipped  bool
}

// Filter narrows catalog to the depots for lang plus language-agnostic depots.
// Depot tags come from meta when it knows the depot, else from the entry.
// When no depot matches lang the result is every agnostic depot plus the
// unfiltered catalog, flagged FellBack.
func Filter(catalog depot.Catalog, meta metadata.Title, lang string) (depot.Catalog, FilterResult) {
	if lang == SkipFilter {
		return catalog, FilterResult{Language: lang, Skipped: true}
	}
	want := Normalize(lang)
	result := FilterResult{Language: want}

	enriched := make([]depot.Entry, len(catalog.Entries))
	for i, entry := range catalog.Entries {
		enriched[i] = enrich(entry, meta)
	}

	var kept []depot.Entry
	for _, entry := range enriched {
		switch entry.Language {
		case "":
			result.Agnostic++
			kept = append(kept, entry)
		case want:
			result.Tagged++
			kept = append(kept, entry)
		}
	}
	if result.Tagged == 0 {
		result.FellBack = true
		kept = enriched
	}
	out := catalog.Clone()
	out.Entries = kept
	return out, result
}

func enrich(entry depot.Entry, meta metadata.Title) depot.Entry {
	info, ok := meta.Depots[entry.DepotID]
	if ok {
		entry.Language = Normalize(info.Language)
		if entry.SizeBytes == 0 {
			entry.SizeBytes = info.SizeBytes
		}
		if entry.ManifestID == "" {
			entry.ManifestID = info.ManifestID
		}
		if entry.OS == "" {
			entry.OS = info.OS
		}
	} else {
		entry.Language = Normalize(entry.Language)
	}
	return entry
}

// FilterByLanguage fetches metadata for the catalog's title and filters it.
// The skip sentinel returns the catalog without touching source.
func FilterByLanguage(ctx context.Context, source metadata.Source, catalog depot.Catalog, lang string) (depot.Catalog, FilterResult, error) {
	if lang == SkipFilter {
		out, result := Filter(catalog, metadata.Title{}, lang)
		return out, result, nil
	}
	if source == nil {
		return depot.Catalog{}, FilterResult{}, services.Wrap(services.ErrMetadataFetchFailed, "language", "filter", "no metadata source configured", nil)
	}
	meta, err := source.Title(ctx, catalog.TitleID)
	if err != nil {
		return depot.Catalog{}, FilterResult{}, services.Wrap(services.ErrMetadataFetchFailed, "language", "filter", "fetch depot languages for "+catalog.TitleID, err)
	}
	out, result := Filter(catalog, meta, lang)
	return out, result, nil
}

// Available lists the distinct languages meta offers as store names, sorted,
// with SkipFilter first.
func Available(meta metadata.Title) []string {
	names := NormalizeList(meta.DepotLanguages())
	sort.Strings(names)
	return append([]string{SkipFilter}, names...)
}
