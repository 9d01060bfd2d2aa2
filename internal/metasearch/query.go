package metasearch

import (
	"strings"
	"unicode"
)

// Query is a parsed search string. Words starting with "-" are excluded,
// double-quoted runs are kept together as phrases.
type Query struct {
	Include []string
	Exclude []string
}

func ParseQuery(raw string) Query {
	var q Query
	for _, tok := range tokenize(raw) {
		if strings.HasPrefix(tok, "-") {
			if term := strings.TrimPrefix(tok, "-"); term != "" {
				q.Exclude = append(q.Exclude, term)
			}
			continue
		}
		q.Include = append(q.Include, tok)
	}
	return q
}

func tokenize(raw string) []string {
	var tokens []string
	var cur strings.Builder
	inQuotes := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range raw {
		switch {
		case r == '"':
			if inQuotes {
				flush()
			}
			inQuotes = !inQuotes
		case unicode.IsSpace(r) && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// Empty reports whether there is nothing to search for.
func (q Query) Empty() bool {
	return len(q.Include) == 0
}

// String renders the include terms for a provider query string, quoting
// phrases.
func (q Query) String() string {
	parts := make([]string, 0, len(q.Include))
	for _, term := range q.Include {
		if strings.ContainsFunc(term, unicode.IsSpace) {
			term = `"` + term + `"`
		}
		parts = append(parts, term)
	}
	return strings.Join(parts, " ")
}

// Excludes reports whether text mentions any excluded term.
func (q Query) Excludes(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range q.Exclude {
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
