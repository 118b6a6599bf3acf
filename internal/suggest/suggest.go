// Package suggest finds known option names close to a mistyped one.
package suggest

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Match is a known name with its similarity (0-1, higher is closer).
type Match struct {
	Name  string
	Score float64
}

// Threshold is the minimum score for a name to be suggested.
const Threshold = 0.6

// Limit caps the number of suggestions.
const Limit = 3

// Closest returns up to Limit names from known that score at least Threshold
// against name, best first. Dashes and case are ignored when comparing.
func Closest(name string, known []string) []Match {
	target := normalize(name)
	if target == "" {
		return nil
	}

	var out []Match
	seen := make(map[string]bool, len(known))
	for _, k := range known {
		if seen[k] {
			continue
		}
		seen[k] = true
		if score := similarity(target, normalize(k)); score >= Threshold {
			out = append(out, Match{Name: k, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > Limit {
		out = out[:Limit]
	}
	return out
}

// Names is Closest without the scores.
func Names(name string, known []string) []string {
	var names []string
	for _, m := range Closest(name, known) {
		names = append(names, m.Name)
	}
	return names
}

// normalize lowercases s, drops leading dashes and treats _ like -.
func normalize(s string) string {
	s = strings.TrimLeft(strings.TrimSpace(s), "-")
	return strings.ReplaceAll(strings.ToLower(s), "_", "-")
}

// similarity is the normalized edit distance plus small bonuses for a
// shared prefix and suffix, capped at 1.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	score := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
	score += 0.1 * float64(sharedPrefix(ra, rb)) / float64(longest)
	score += 0.05 * float64(sharedSuffix(ra, rb)) / float64(longest)
	return min(score, 1)
}

func sharedPrefix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func sharedSuffix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}
