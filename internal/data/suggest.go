package data

import "github.com/agnivade/levenshtein"

// Suggest returns the candidate closest to name by edit distance, or "" when
// nothing is within half the name's length.
func Suggest(name string, candidates []string) string {
	best := ""
	bestDist := len(name)/2 + 1
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
