package textutil

import (
	"regexp"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeLabel lowercases a label and collapses whitespace so that
// " Scheme  Name:" and "scheme name:" compare equal.
func NormalizeLabel(label string) string {
	label = strings.ToLower(label)
	label = whitespaceRegex.ReplaceAllString(label, " ")
	return strings.TrimSpace(label)
}

type scored struct {
	candidate  string
	similarity float64
}

// ClosestMatches returns up to n candidates most similar to target by Jaro-Winkler
// similarity, candidates below minSimilarity are dropped.
func ClosestMatches(target string, candidates []string, n int, minSimilarity float64) []string {
	target = NormalizeLabel(target)

	var scores []scored
	for _, c := range candidates {
		similarity := matchr.JaroWinkler(target, NormalizeLabel(c), false)
		if similarity < minSimilarity {
			continue
		}
		scores = append(scores, scored{candidate: c, similarity: similarity})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].similarity > scores[j].similarity
	})

	if len(scores) > n {
		scores = scores[:n]
	}
	out := make([]string, len(scores))
	for i, s := range scores {
		out[i] = s.candidate
	}
	return out
}
