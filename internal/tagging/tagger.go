package tagging

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

// Filter keeps only slug-safe tags no longer than maxLen, dropping the rest
// silently. Duplicates that differ only by case collapse to the first one seen.
func Filter(terms []string, maxLen int) []string {
	if len(terms) == 0 {
		return nil
	}

	fold := cases.Fold()
	seen := make(map[string]bool)
	result := make([]string, 0, len(terms))

	for _, term := range terms {
		term = strings.TrimSpace(term)
		if !IsValid(term, maxLen) {
			continue
		}
		key := fold.String(term)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, term)
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// IsValid reports whether term is a storable tag.
func IsValid(term string, maxLen int) bool {
	if term == "" || len(term) > maxLen {
		return false
	}
	return slugPattern.MatchString(term)
}

// Merge combines tag lists case-insensitively, keeping first-seen spelling.
func Merge(existing, extra []string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool)
	result := make([]string, 0, len(existing)+len(extra))

	for _, list := range [][]string{existing, extra} {
		for _, tag := range list {
			key := fold.String(tag)
			if !seen[key] {
				seen[key] = true
				result = append(result, tag)
			}
		}
	}
	return result
}
