package depot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"depotdeck/internal/bundle"
	"depotdeck/internal/services"
)

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type infoDepot struct {
	Key        flexString `json:"key"`
	Manifest   flexString `json:"manifest"`
	ManifestID flexString `json:"manifest_id"`
	Size       flexString `json:"size"`
	Name       flexString `json:"name"`
	Language   flexString `json:"language"`
	OS         flexString `json:"oslist"`
}

type infoDocument struct {
	AppID      flexString                 `json:"appid"`
	AppIDAlt   flexString                 `json:"app_id"`
	Name       flexString                 `json:"name"`
	GameName   flexString                 `json:"game_name"`
	InstallDir flexString                 `json:"installdir"`
	Depots     map[string]json.RawMessage `json:"depots"`
}

// ResolveInfoJSON parses the alternate info.json catalog format.
func ResolveInfoJSON(data []byte, titleID string) (Catalog, error) {
	draft := newDraft(titleID)
	installDir, err := draft.parseInfo(data)
	if err != nil {
		return Catalog{}, err
	}
	catalog, err := draft.finish()
	if err != nil {
		return Catalog{}, err
	}
	catalog.InstallDir = installDir
	return catalog, nil
}

func (d *scriptDraft) parseInfo(data []byte) (string, error) {
	var doc infoDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", services.Wrap(services.ErrCorruptArchive, "resolve", "info.json", "invalid JSON", err)
	}
	appID := string(doc.AppID)
	if appID == "" {
		appID = string(doc.AppIDAlt)
	}
	if d.titleID == "" {
		d.titleID = appID
	}
	if d.titleName == "" {
		d.titleName = string(doc.Name)
		if d.titleName == "" {
			d.titleName = string(doc.GameName)
		}
	}

	ids := make([]string, 0, len(doc.Depots))
	for id := range doc.Depots {
		if id != d.titleID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return lessNumeric(ids[i], ids[j]) })

	for _, id := range ids {
		var raw infoDepot
		if err := json.Unmarshal(doc.Depots[id], &raw); err != nil {
			// Non-object values such as "branches" metadata are not depots.
			continue
		}
		manifest := string(raw.Manifest)
		if manifest == "" {
			manifest = string(raw.ManifestID)
		}
		d.merge(Entry{
			DepotID:    id,
			ManifestID: manifest,
			Key:        string(raw.Key),
			Name:       stripOSKeyword(string(raw.Name)),
			SizeBytes:  parseSize(string(raw.Size)),
			Language:   strings.ToLower(string(raw.Language)),
			OS:         detectOS(string(raw.OS)),
		})
	}
	return string(doc.InstallDir), nil
}

// ResolveBundle resolves every script in the bundle, then info.json, merging
// them in that order with later values winning, and attaches manifest files.
func ResolveBundle(extracted *bundle.Extracted, titleID string) (Catalog, error) {
	if extracted == nil {
		return Catalog{}, services.Wrap(services.ErrEmptyBundle, "resolve", "", "no extracted bundle", nil)
	}
	draft := newDraft(titleID)
	for _, path := range extracted.ScriptPaths {
		text, err := os.ReadFile(path)
		if err != nil {
			return Catalog{}, fmt.Errorf("read script %s: %w", path, err)
		}
		draft.parseScript(string(text))
	}
	var installDir string
	if extracted.InfoPath != "" {
		data, err := os.ReadFile(extracted.InfoPath)
		if err != nil {
			return Catalog{}, fmt.Errorf("read info.json: %w", err)
		}
		if installDir, err = draft.parseInfo(data); err != nil {
			return Catalog{}, err
		}
	}

	for depotID, path := range extracted.ManifestPaths {
		idx, ok := draft.index[depotID]
		if !ok {
			continue
		}
		if draft.entries[idx].ManifestID == "" {
			_, manifestID, _ := bundle.SplitManifestName(path)
			draft.entries[idx].ManifestID = manifestID
		}
	}

	catalog, err := draft.finish()
	if err != nil {
		return Catalog{}, err
	}
	catalog.InstallDir = installDir
	for _, entry := range catalog.Entries {
		path, ok := extracted.ManifestPaths[entry.DepotID]
		if !ok {
			continue
		}
		if _, manifestID, _ := bundle.SplitManifestName(path); manifestID != entry.ManifestID {
			continue
		}
		if catalog.ManifestFiles == nil {
			catalog.ManifestFiles = make(map[string]string)
		}
		catalog.ManifestFiles[entry.DepotID] = path
	}
	return catalog, nil
}

func lessNumeric(a, b string) bool {
	ai, aerr := strconv.ParseUint(a, 10, 64)
	bi, berr := strconv.ParseUint(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
