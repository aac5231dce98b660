package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// Lookalike is a candidate name that is suspiciously close to an already known one.
type Lookalike struct {
	Name       string
	Known      string
	Similarity float64
}

// FindLookalikes returns every candidate that is not exactly a known name (after
// normalization) but whose Jaro-Winkler similarity to one is at least `threshold`.
// Only the most similar known name is reported per candidate.
func FindLookalikes(candidates, known []string, threshold float64) []Lookalike {
	normalizedKnown := make([]string, len(known))
	exact := make(map[string]struct{}, len(known))
	for i, k := range known {
		normalizedKnown[i] = NormalizeName(k)
		exact[normalizedKnown[i]] = struct{}{}
	}

	var result []Lookalike
	for _, candidate := range candidates {
		normalized := NormalizeName(candidate)
		if _, ok := exact[normalized]; ok {
			continue
		}

		var best Lookalike
		for i, k := range normalizedKnown {
			similarity := matchr.JaroWinkler(normalized, k, false)
			if similarity > best.Similarity {
				best = Lookalike{Name: candidate, Known: known[i], Similarity: similarity}
			}
		}
		if best.Similarity >= threshold {
			result = append(result, best)
		}
	}
	return result
}
