// Package util holds small helpers shared across dgxops packages.
package util

import (
	"sort"
	"strings"
)

// JoinOrNone joins items with ", ", or returns "(none)" when there are none.
func JoinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// Pluralize returns singular if count is 1, otherwise plural.
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// LevenshteinDistance returns the edit distance between a and b.
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// maxSuggestDistance is the largest edit distance still treated as a likely typo.
const maxSuggestDistance = 2

// SuggestSimilar returns up to limit candidates close to input, nearest first.
// Comparison is case-insensitive. Returns nil when nothing is close.
func SuggestSimilar(input string, candidates []string, limit int) []string {
	if input == "" || len(candidates) == 0 {
		return nil
	}

	type match struct {
		name string
		dist int
	}
	var matches []match
	lower := strings.ToLower(input)
	for _, c := range candidates {
		d := LevenshteinDistance(lower, strings.ToLower(c))
		if d <= maxSuggestDistance {
			matches = append(matches, match{name: c, dist: d})
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].name < matches[j].name
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}
