// matcher.go scans extracted page text for keyword occurrences and carves
// context snippets around them.
package scraper

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/civicscan/civicscan/internal/db/models"
)

// snippetRadius is the number of runes of context kept on each side of a match.
const snippetRadius = 120

// Match is one keyword hit on one page of a document.
type Match struct {
	PageNumber int // 1-based
	KeywordID  string
	Term       string
	Snippet    string
}

// FindMatches scans pages for keywords, case-insensitively. At most one match
// per (page, keyword) pair is recorded, at the first occurrence; a term
// repeated on one page is one hit, not many.
func FindMatches(pages []string, keywords []*models.Keyword) []Match {
	matches := make([]Match, 0)

	for pageIdx, text := range pages {
		if text == "" {
			continue
		}
		// Lowercase rune by rune so the lowered page stays rune-aligned with
		// the original. Lowercasing can change a rune's encoded length, so
		// byte offsets into the lowered string must never be applied to the
		// original text; all carving happens in rune offsets instead.
		runes := []rune(text)
		lowerRunes := make([]rune, len(runes))
		for i, r := range runes {
			lowerRunes[i] = unicode.ToLower(r)
		}
		lower := string(lowerRunes)

		for _, keyword := range keywords {
			term := strings.ToLower(strings.TrimSpace(keyword.Term))
			if term == "" {
				continue
			}
			pos := strings.Index(lower, term)
			if pos < 0 {
				continue
			}
			runeStart := utf8.RuneCountInString(lower[:pos])
			matches = append(matches, Match{
				PageNumber: pageIdx + 1,
				KeywordID:  keyword.ID,
				Term:       keyword.Term,
				Snippet:    carveSnippet(runes, runeStart, utf8.RuneCountInString(term)),
			})
		}
	}

	return matches
}

// carveSnippet returns the page text around a match, given rune offsets into
// the page's rune slice.
func carveSnippet(runes []rune, runeStart, matchLen int) string {
	runeEnd := runeStart + matchLen
	if runeEnd > len(runes) {
		runeEnd = len(runes)
	}

	start := runeStart - snippetRadius
	if start < 0 {
		start = 0
	}
	end := runeEnd + snippetRadius
	if end > len(runes) {
		end = len(runes)
	}

	snippet := strings.TrimSpace(string(runes[start:end]))
	snippet = strings.Join(strings.Fields(snippet), " ")

	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(runes) {
		snippet += "…"
	}
	return snippet
}
