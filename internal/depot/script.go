package depot

import (
	"regexp"
	"strconv"
	"strings"

	"depotdeck/internal/services"
)

var (
	addAppPattern   = regexp.MustCompile(`^addappid\s*\(\s*(\d+)\s*(?:(,)\s*[^,]*?\s*,\s*"([^"]*)"\s*)?\)\s*;?\s*(?:--\s*(.*))?$`)
	manifestPattern = regexp.MustCompile(`^setManifestid\s*\(\s*(\d+)\s*,\s*"([^"]*)"\s*(?:,\s*([^)]*?)\s*)?\)`)
	tokenPattern    = regexp.MustCompile(`^addtoken\s*\(\s*(\d+)\s*,\s*"([^"]*)"\s*\)`)
)

type declaration struct {
	id      string
	keyed   bool
	key     string
	comment string
}

type pin struct {
	depotID    string
	manifestID string
	size       uint64
}

// scriptDraft is the raw parse result before naming rules are applied.
type scriptDraft struct {
	titleID   string
	titleName string
	entries   []Entry
	index     map[string]int
	tokens    map[string]string
}

func newDraft(titleID string) *scriptDraft {
	return &scriptDraft{
		titleID: strings.TrimSpace(titleID),
		index:   make(map[string]int),
		tokens:  make(map[string]string),
	}
}

// declare records a depot declaration. A repeated declaration replaces the
// earlier key, name and OS.
func (d *scriptDraft) declare(e Entry) {
	idx, ok := d.index[e.DepotID]
	if !ok {
		d.index[e.DepotID] = len(d.entries)
		d.entries = append(d.entries, e)
		return
	}
	cur := &d.entries[idx]
	cur.Key = e.Key
	cur.Name = e.Name
	cur.OS = e.OS
}

// merge folds e into the draft: non-empty fields of e overwrite.
func (d *scriptDraft) merge(e Entry) {
	idx, ok := d.index[e.DepotID]
	if !ok {
		d.index[e.DepotID] = len(d.entries)
		d.entries = append(d.entries, e)
		return
	}
	cur := &d.entries[idx]
	if e.Key != "" {
		cur.Key = e.Key
	}
	if e.ManifestID != "" {
		cur.ManifestID = e.ManifestID
	}
	if e.Name != "" {
		cur.Name = e.Name
	}
	if e.SizeBytes > 0 {
		cur.SizeBytes = e.SizeBytes
	}
	if e.Language != "" {
		cur.Language = e.Language
	}
	if e.OS != "" {
		cur.OS = e.OS
	}
}

// Resolve parses Lua depot script text. titleID may be empty, in which case
// the first single-argument addappid line names the app, then the first
// declaration of any shape.
func Resolve(scriptText, titleID string) (Catalog, error) {
	draft := newDraft(titleID)
	draft.parseScript(scriptText)
	return draft.finish()
}

func (d *scriptDraft) parseScript(text string) {
	var decls []declaration
	var pins []pin
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		if m := addAppPattern.FindStringSubmatch(line); m != nil {
			decls = append(decls, declaration{
				id:      m[1],
				keyed:   m[2] == ",",
				key:     strings.TrimSpace(m[3]),
				comment: strings.TrimSpace(m[4]),
			})
			continue
		}
		if m := manifestPattern.FindStringSubmatch(line); m != nil {
			pins = append(pins, pin{depotID: m[1], manifestID: strings.TrimSpace(m[2]), size: parseSize(m[3])})
			continue
		}
		if m := tokenPattern.FindStringSubmatch(line); m != nil {
			if token := strings.TrimSpace(m[2]); token != "" {
				d.tokens[m[1]] = token
			}
		}
	}

	if d.titleID == "" {
		d.titleID = inferTitleID(decls)
	}

	for _, decl := range decls {
		if decl.id == d.titleID {
			if d.titleName == "" && decl.comment != "" {
				d.titleName = decl.comment
			}
			continue
		}
		if !decl.keyed {
			// DLC ownership lines carry no depot.
			continue
		}
		d.declare(Entry{
			DepotID: decl.id,
			Key:     decl.key,
			Name:    stripOSKeyword(decl.comment),
			OS:      detectOS(decl.comment),
		})
	}

	for _, p := range pins {
		idx, ok := d.index[p.depotID]
		if !ok {
			continue
		}
		d.entries[idx].ManifestID = p.manifestID
		d.entries[idx].SizeBytes = p.size
	}
}

func inferTitleID(decls []declaration) string {
	for _, decl := range decls {
		if !decl.keyed {
			return decl.id
		}
	}
	if len(decls) > 0 {
		return decls[0].id
	}
	return ""
}

func (d *scriptDraft) finish() (Catalog, error) {
	if len(d.entries) == 0 {
		return Catalog{}, services.Wrap(services.ErrNoDepotsFound, "resolve", "", "no depot declarations for "+d.titleID, nil)
	}
	catalog := Catalog{
		TitleID:   d.titleID,
		TitleName: d.titleName,
		Entries:   append([]Entry(nil), d.entries...),
	}
	if len(d.tokens) > 0 {
		catalog.Tokens = d.tokens
	}
	applyNames(&catalog)
	return catalog, nil
}

func parseSize(raw string) uint64 {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return value
}
