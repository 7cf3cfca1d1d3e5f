// extractor.go pulls plain text out of downloaded PDFs, one string per page.
package scraper

import (
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
)

// ExtractPages returns the plain text of each page of the PDF at path,
// indexed page-1. A page whose text cannot be decoded yields an empty string
// rather than failing the document; scanned-image pages with no text layer
// are common in municipal archives.
func ExtractPages(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtractFailed, path, err)
	}
	defer f.Close()

	numPages := r.NumPage()
	pages := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("skipping undecodable pdf page", "path", path, "page", i, "error", err)
			continue
		}
		pages[i-1] = text
	}

	return pages, nil
}
