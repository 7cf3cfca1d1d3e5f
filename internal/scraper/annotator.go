// annotator.go produces the annotated copy of a matched document: a stamp on
// every page that matched a keyword, and a bookmark outline jumping to each
// matched page.
package scraper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Annotate writes an annotated copy of the PDF at src to dest. Matched pages
// get a visible stamp naming the matched terms, and the copy gets a bookmark
// per matched page so reviewers can jump straight to hits. Unmatched
// documents should not be annotated; callers skip them.
func Annotate(src, dest string, matches []Match) error {
	if len(matches) == 0 {
		return fmt.Errorf("no matches to annotate in %s", src)
	}

	// Group matched terms by page.
	termsByPage := make(map[int][]string)
	for _, match := range matches {
		termsByPage[match.PageNumber] = append(termsByPage[match.PageNumber], match.Term)
	}
	pages := make([]int, 0, len(termsByPage))
	for page := range termsByPage {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	selected := make([]string, len(pages))
	for i, page := range pages {
		selected[i] = strconv.Itoa(page)
	}

	wm, err := api.TextWatermark(
		"KEYWORD MATCH",
		"points:14, scale:0.9 rel, pos:tc, off:0 -10, fillcolor:#B00020, op:0.65, rot:0",
		true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to build match stamp: %w", err)
	}

	if err := api.AddWatermarksFile(src, dest, selected, wm, nil); err != nil {
		return fmt.Errorf("failed to stamp matched pages: %w", err)
	}

	bookmarks := make([]pdfcpu.Bookmark, 0, len(pages))
	for _, page := range pages {
		terms := dedupe(termsByPage[page])
		bookmarks = append(bookmarks, pdfcpu.Bookmark{
			Title:    fmt.Sprintf("p.%d: %s", page, strings.Join(terms, ", ")),
			PageFrom: page,
		})
	}

	if err := api.AddBookmarksFile(dest, "", bookmarks, true, nil); err != nil {
		return fmt.Errorf("failed to add match bookmarks: %w", err)
	}

	return nil
}
