package textutil

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
)

// StripTags removes all markup from an HTML fragment and returns its text
// with entities decoded and whitespace collapsed.
func StripTags(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(tagPattern.ReplaceAllString(fragment, " "))
	}
	doc.Find("script, style").Remove()
	return collapse(doc.Text())
}

// Normalize trims s and puts it in Unicode NFC form so visually identical
// titles compare equal.
func Normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Truncate shortens s to at most maxLen runes, appending an ellipsis when cut.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen <= 0 || len(runes) <= maxLen {
		return s
	}
	return strings.TrimSpace(string(runes[:maxLen])) + "..."
}

func collapse(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
