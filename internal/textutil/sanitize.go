package textutil

import "strings"

var segmentReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", " -",
	"*", "-",
	"?", "",
	"\"", "'",
	"<", "",
	">", "",
	"|", "-",
)

// PathSegment turns a title or install dir into one path element that is
// valid on Linux and inside a Proton prefix. Separators and reserved
// characters are replaced, runs of whitespace collapse to one space, and
// leading or trailing dots and spaces are dropped. "." and ".." become "".
func PathSegment(name string) string {
	name = segmentReplacer.Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	return strings.Trim(name, ". ")
}
