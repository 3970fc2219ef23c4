package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
)

type entry struct {
	code2   string   // ISO 639-1 (2-letter)
	code3   string   // ISO 639-2 primary (3-letter)
	alt3    string   // ISO 639-2 alternate (e.g. "fre" vs "fra")
	store   string   // Store language name used in depot config
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "english")
}

var languages = []entry{
	{"en", "eng", "", "english", "English", []string{"english"}},
	{"fr", "fra", "fre", "french", "French", []string{"french", "francais"}},
	{"de", "deu", "ger", "german", "German", []string{"german", "deutsch"}},
	{"it", "ita", "", "italian", "Italian", []string{"italian"}},
	{"es", "spa", "", "spanish", "Spanish - Spain", []string{"spanish", "spanish - spain"}},
	{"", "", "", "latam", "Spanish - Latin America", []string{"spanish - latin america", "latin american spanish"}},
	{"pt", "por", "", "portuguese", "Portuguese - Portugal", []string{"portuguese", "portuguese - portugal"}},
	{"", "", "", "brazilian", "Portuguese - Brazil", []string{"portuguese - brazil", "brazilian portuguese"}},
	{"ru", "rus", "", "russian", "Russian", []string{"russian"}},
	{"pl", "pol", "", "polish", "Polish", []string{"polish"}},
	{"ja", "jpn", "", "japanese", "Japanese", []string{"japanese"}},
	{"ko", "kor", "", "koreana", "Korean", []string{"korean"}},
	{"zh", "zho", "chi", "schinese", "Simplified Chinese", []string{"chinese", "simplified chinese"}},
	{"", "", "", "tchinese", "Traditional Chinese", []string{"traditional chinese"}},
	{"nl", "nld", "dut", "dutch", "Dutch", []string{"dutch"}},
	{"sv", "swe", "", "swedish", "Swedish", []string{"swedish"}},
	{"da", "dan", "", "danish", "Danish", []string{"danish"}},
	{"no", "nor", "", "norwegian", "Norwegian", []string{"norwegian"}},
	{"fi", "fin", "", "finnish", "Finnish", []string{"finnish"}},
	{"tr", "tur", "", "turkish", "Turkish", []string{"turkish"}},
	{"cs", "ces", "cze", "czech", "Czech", []string{"czech"}},
	{"hu", "hun", "", "hungarian", "Hungarian", []string{"hungarian"}},
	{"th", "tha", "", "thai", "Thai", []string{"thai"}},
	{"uk", "ukr", "", "ukrainian", "Ukrainian", []string{"ukrainian"}},
	{"ar", "ara", "", "arabic", "Arabic", []string{"arabic"}},
	{"el", "ell", "gre", "greek", "Greek", []string{"greek"}},
	{"ro", "ron", "rum", "romanian", "Romanian", []string{"romanian"}},
	{"bg", "bul", "", "bulgarian", "Bulgarian", []string{"bulgarian"}},
	{"vi", "vie", "", "vietnamese", "Vietnamese", []string{"vietnamese"}},
	{"id", "ind", "", "indonesian", "Indonesian", []string{"indonesian"}},
}

// Index maps built at init time.
var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byStore map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byStore = make(map[string]*entry, len(languages))
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		if e.code2 != "" {
			byCode2[e.code2] = e
		}
		if e.code3 != "" {
			byCode3[e.code3] = e
		}
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		byStore[e.store] = e
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byStore[code]; ok {
		return e
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

var latinAmericaRegions = map[string]struct{}{
	"419": {}, "MX": {}, "AR": {}, "CO": {}, "CL": {}, "PE": {}, "VE": {}, "UY": {},
}

// fromTag maps BCP 47 tags such as "pt-BR" or "zh-Hant" onto a store entry.
func fromTag(code string) *entry {
	tag, err := xlanguage.Parse(code)
	if err != nil {
		return nil
	}
	base, _ := tag.Base()
	region, regionConf := tag.Region()
	explicitRegion := regionConf == xlanguage.Exact
	switch base.String() {
	case "zh":
		script, _ := tag.Script()
		if script.String() == "Hant" || (explicitRegion && (region.String() == "TW" || region.String() == "HK")) {
			return byStore["tchinese"]
		}
	case "pt":
		if explicitRegion && region.String() == "BR" {
			return byStore["brazilian"]
		}
	case "es":
		if _, ok := latinAmericaRegions[region.String()]; ok && explicitRegion {
			return byStore["latam"]
		}
	}
	return lookup(base.String())
}

// Normalize maps an ISO code, BCP 47 tag, English name or store name to the
// store's language name ("en", "eng", "English" and "english" all give
// "english"). Unrecognised input is returned lowercased and trimmed.
func Normalize(code string) string {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	if trimmed == "" {
		return ""
	}
	if e := lookup(trimmed); e != nil {
		return e.store
	}
	if e := fromTag(trimmed); e != nil {
		return e.store
	}
	return trimmed
}

// ToISO2 converts any recognized language to ISO 639-1 (2-letter).
// Regional store variants map to their base language.
// Returns empty string for unrecognized input.
func ToISO2(code string) string {
	switch Normalize(code) {
	case "latam":
		return "es"
	case "brazilian":
		return "pt"
	case "tchinese":
		return "zh"
	}
	if e := lookup(Normalize(code)); e != nil {
		return e.code2
	}
	return ""
}

// DisplayName returns a human-readable language name for any recognized code.
// Returns "Unknown" for empty input, or the uppercased code for unrecognized input.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e := lookup(Normalize(code)); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeList deduplicates and normalizes a list of languages to store names,
// preserving first-seen order.
func NormalizeList(languages []string) []string {
	if len(languages) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(languages))
	seen := make(map[string]struct{}, len(languages))
	for _, lang := range languages {
		name := Normalize(lang)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		normalized = append(normalized, name)
	}
	return normalized
}
