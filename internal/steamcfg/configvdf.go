package steamcfg

import (
	"bytes"
	"fmt"
	"sort"

	"depotdeck/internal/vdf"
)

// DepotKey pairs a depot id with its hex decryption key.
type DepotKey struct {
	DepotID string
	Key     string
}

var depotsPath = []string{"InstallConfigStore", "Software", "Valve", "Steam", "depots"}

// AddDecryptionKeys sets DecryptionKey for every depot in keys and returns the
// new config.vdf content and how many entries changed. Existing depot entries
// are updated in place; empty content starts a fresh InstallConfigStore.
func AddDecryptionKeys(content []byte, keys []DepotKey) ([]byte, int, error) {
	root := vdf.NewSection("")
	if len(bytes.TrimSpace(content)) > 0 {
		parsed, err := vdf.Parse(content)
		if err != nil {
			return nil, 0, fmt.Errorf("parse config.vdf: %w", err)
		}
		root = parsed
	}
	depots := root.Ensure(depotsPath...)
	changed := 0
	for _, key := range keys {
		if key.DepotID == "" || key.Key == "" {
			continue
		}
		entry := depots.Ensure(key.DepotID)
		if entry.String("DecryptionKey") == key.Key {
			continue
		}
		entry.Set("DecryptionKey", key.Key)
		changed++
	}
	if changed == 0 && len(bytes.TrimSpace(content)) > 0 {
		return content, 0, nil
	}
	return vdf.Format(root), changed, nil
}

// DecryptionKeys lists the depot keys stored in config.vdf content, sorted by
// depot id.
func DecryptionKeys(content []byte) ([]DepotKey, error) {
	root, err := vdf.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse config.vdf: %w", err)
	}
	depots := root.Lookup(depotsPath...)
	if depots == nil {
		return nil, nil
	}
	var keys []DepotKey
	for _, entry := range depots.Children {
		if key := entry.String("DecryptionKey"); key != "" {
			keys = append(keys, DepotKey{DepotID: entry.Key, Key: key})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].DepotID < keys[j].DepotID })
	return keys, nil
}
