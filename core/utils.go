package core

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// suggestionCutoff is the minimum similarity ratio for a candidate to be suggested.
const suggestionCutoff = 0.6

// Suggest returns the candidate closest to `word`, or "" if none is similar enough.
func Suggest(word string, candidates []string) string {
	word = CleanString(word)
	if word == "" || len(candidates) == 0 {
		return ""
	}
	var (
		best      string
		bestRatio float64
	)
	lword := strings.Split(strings.ToLower(word), "")
	for _, cand := range candidates {
		m := difflib.NewMatcher(lword, strings.Split(strings.ToLower(cand), ""))
		if ratio := m.Ratio(); ratio >= suggestionCutoff && ratio > bestRatio {
			best, bestRatio = cand, ratio
		}
	}
	return best
}

// DidYouMean formats a suggestion hint for error messages.
func DidYouMean(word string, candidates []string) string {
	if s := Suggest(word, candidates); s != "" {
		return fmt.Sprintf(" (did you mean %q?)", s)
	}
	return ""
}
