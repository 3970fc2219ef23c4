package textutil

import (
	"sort"
	"strings"
)

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// Match is one ranked candidate.
type Match struct {
	Index int
	Score float64
}

// RankTitles scores candidates against query and returns those with a
// positive score, best first. An exact case-insensitive match always scores 1
// and ties keep candidate order.
func RankTitles(query string, candidates []string) []Match {
	queryFP := NewFingerprint(query)
	normalizedQuery := strings.ToLower(strings.TrimSpace(query))
	matches := make([]Match, 0, len(candidates))
	for i, candidate := range candidates {
		score := CosineSimilarity(queryFP, NewFingerprint(candidate))
		if normalizedQuery != "" && strings.ToLower(strings.TrimSpace(candidate)) == normalizedQuery {
			score = 1
		}
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{Index: i, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
