package depot

import (
	"regexp"
	"strings"
)

var redistributableNames = map[string]string{
	"228980": "Steamworks Common Redistributables",
	"228981": "VC 2005 Redist",
	"228982": "VC 2008 Redist",
	"228983": "VC 2010 Redist",
	"228984": "VC 2012 Redist",
	"228985": "VC 2013 Redist",
	"228986": "VC 2015 Redist",
	"228987": "VC 2017 Redist",
	"228988": "VC 2019 Redist",
	"228989": "VC 2022 Redist",
	"228990": "DirectX Jun 2010 Redist",
	"229000": ".NET 3.5 Redist",
	"229001": ".NET 3.5 Client Profile Redist",
	"229002": ".NET 4.0 Redist",
	"229003": ".NET 4.0 Client Profile Redist",
	"229004": ".NET 4.5.2 Redist",
	"229005": ".NET 4.6 Redist",
	"229006": ".NET 4.7 Redist",
	"229007": ".NET 4.8 Redist",
}

var osSuffixPattern = regexp.MustCompile(`(?i)[\s\-–(\[]*\b(windows|win64|win32|win|linux|macos|mac|osx|darwin)\b[\s)\]]*$`)

// RedistributableName returns the well-known name for shared redistributable
// depots.
func RedistributableName(depotID string) (string, bool) {
	name, ok := redistributableNames[depotID]
	return name, ok
}

// IsRedistributable reports whether depotID is a shared redistributable.
func IsRedistributable(depotID string) bool {
	_, ok := redistributableNames[depotID]
	return ok
}

func defaultName(depotID string) string {
	return "Depot " + depotID
}

func detectOS(comment string) string {
	lower := strings.ToLower(comment)
	switch {
	case strings.Contains(lower, "windows") || strings.Contains(lower, "- win"):
		return OSWindows
	case strings.Contains(lower, "linux"):
		return OSLinux
	case strings.Contains(lower, "mac") || strings.Contains(lower, "osx") || strings.Contains(lower, "darwin"):
		return OSMac
	default:
		return ""
	}
}

func stripOSKeyword(comment string) string {
	comment = strings.TrimSpace(comment)
	stripped := strings.TrimSpace(osSuffixPattern.ReplaceAllString(comment, ""))
	if stripped == "" {
		return comment
	}
	return stripped
}

// applyNames fills empty names from the redistributable table or the default
// pattern, then renames the largest default-named depot after the title.
func applyNames(c *Catalog) {
	largest := -1
	for i := range c.Entries {
		entry := &c.Entries[i]
		if entry.Name == "" || entry.Name == defaultName(entry.DepotID) {
			if name, ok := RedistributableName(entry.DepotID); ok {
				entry.Name = name
			} else {
				entry.Name = defaultName(entry.DepotID)
			}
		}
		if entry.SizeBytes > 0 && (largest < 0 || entry.SizeBytes > c.Entries[largest].SizeBytes) {
			largest = i
		}
	}
	title := strings.TrimSpace(c.TitleName)
	if largest >= 0 && title != "" && c.Entries[largest].Name == defaultName(c.Entries[largest].DepotID) {
		c.Entries[largest].Name = title + " Content"
	}
}
