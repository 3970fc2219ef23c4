// Package textutil provides text helpers for matching store titles and for
// turning titles into safe path segments.
//
// Title matching builds a term-frequency fingerprint per string and compares
// fingerprints with cosine similarity. Tokenization lowercases, splits on
// anything that is not a letter or digit, and drops single-letter words while
// keeping numbers so sequels stay distinguishable.
package textutil
