// Package language normalises language names and filters depot catalogs by
// language.
//
// Store depots are tagged with names such as "english" or "schinese"; Normalize
// maps ISO 639 codes, BCP 47 tags and English names onto those. Filter keeps
// the depots tagged with the requested language plus every language-agnostic
// depot, and falls back to the whole catalog when nothing carries the tag.
package language
