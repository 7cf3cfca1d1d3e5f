// entities.go extracts named entities from matched page text. NER is
// best-effort enrichment: extraction failures degrade to matches without
// entities, never to job failures.
package scraper

import (
	"regexp"
	"strings"

	prose "github.com/jdkato/prose/v2"

	"github.com/civicscan/civicscan/internal/db/models"
)

// EntityExtractor extracts named entities from a block of page text.
// Implementations must be safe for concurrent use. A nil EntityExtractor in
// the pipeline disables extraction entirely.
type EntityExtractor interface {
	Extract(text string) (*models.EntitySet, error)
}

// ProseExtractor implements EntityExtractor with the prose NLP library for
// location entities, supplemented by pattern matching for the entity classes
// municipal documents care about that generic NER models handle poorly:
// body/department names, dollar amounts, and dates.
type ProseExtractor struct{}

// NewProseExtractor creates a ProseExtractor
func NewProseExtractor() *ProseExtractor {
	return &ProseExtractor{}
}

// orgRe matches capitalized phrases ending in a governing-body noun
// ("Finance Committee", "Department of Public Works").
var orgRe = regexp.MustCompile(
	`(?:[A-Z][a-z]+ )+(?:Council|Committee|Commission|Board|Authority|District|Department|Agency)(?: of(?: [A-Z][a-z]+)+)?`)

// moneyRe matches dollar amounts with optional thousands separators and cents.
var moneyRe = regexp.MustCompile(`\$[0-9][0-9,]*(?:\.[0-9]{1,2})?`)

// textDateRe matches written-out and numeric dates.
var textDateRe = regexp.MustCompile(
	`(?:January|February|March|April|May|June|July|August|September|October|November|December) \d{1,2},? \d{4}|\d{1,2}/\d{1,2}/\d{4}`)

// Extract runs NER plus the pattern supplements over text. The returned set
// may be empty; callers decide whether to store it.
func (e *ProseExtractor) Extract(text string) (*models.EntitySet, error) {
	set := &models.EntitySet{}

	doc, err := prose.NewDocument(text, prose.WithExtraction(true), prose.WithSegmentation(false))
	if err != nil {
		return nil, err
	}
	for _, ent := range doc.Entities() {
		if ent.Label == "GPE" {
			set.Locations = append(set.Locations, strings.TrimSpace(ent.Text))
		}
	}

	set.Organizations = orgRe.FindAllString(text, -1)
	set.MonetaryAmounts = moneyRe.FindAllString(text, -1)
	set.Dates = textDateRe.FindAllString(text, -1)

	set.Organizations = dedupe(set.Organizations)
	set.Locations = dedupe(set.Locations)
	set.MonetaryAmounts = dedupe(set.MonetaryAmounts)
	set.Dates = dedupe(set.Dates)

	return set, nil
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
