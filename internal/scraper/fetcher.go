// fetcher.go discovers candidate documents on agency source pages and
// downloads them with bounded retries.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gocolly/colly/v2"

	"github.com/civicscan/civicscan/internal/config"
	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/internal/telemetry"
)

// DocumentKind classifies a discovered document link.
type DocumentKind string

const (
	// KindMinutes is a meeting minutes document.
	KindMinutes DocumentKind = "minutes"
	// KindPackage is a board/agenda packet, typically much larger.
	KindPackage DocumentKind = "package"
)

// DocumentLink is one candidate PDF discovered on a source page.
type DocumentLink struct {
	URL   string
	Title string
	Kind  DocumentKind
	// Date is the meeting date parsed from the link text or URL, when one
	// could be recognized.
	Date *time.Time
}

// Fetcher discovers and downloads documents from agency sites.
type Fetcher struct {
	userAgent      string
	fetchTimeout   time.Duration
	maxRetries     int
	backoffInitial time.Duration
	backoffMax     time.Duration
	client         *http.Client
}

// NewFetcher creates a Fetcher from scraper configuration
func NewFetcher(cfg config.ScraperConfig) *Fetcher {
	return &Fetcher{
		userAgent:      cfg.UserAgent,
		fetchTimeout:   cfg.FetchTimeout,
		maxRetries:     cfg.MaxRetries,
		backoffInitial: cfg.BackoffInitial,
		backoffMax:     cfg.BackoffMax,
		client:         &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// packageHints mark links that point at full board packets rather than minutes.
var packageHints = []string{"packet", "package", "agenda package", "board package"}

// dateFormats are tried in order against candidate date strings found in link
// text and URLs. Agency sites are wildly inconsistent here.
var dateFormats = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
	"01-02-2006",
	"01/02/2006",
	"1/2/2006",
}

var linkDateRe = regexp.MustCompile(
	`(?i)([A-Z][a-z]+\.? \d{1,2}, \d{4})|(\d{4}-\d{2}-\d{2})|(\d{1,2}[-/]\d{1,2}[-/]\d{4})`)

// Discover fetches a source page and returns the PDF links it advertises,
// classified and date-filtered per the job configuration. The number of
// returned links is capped at cfg.MaxPages.
func (f *Fetcher) Discover(ctx context.Context, pageURL string, cfg *models.JobConfig) ([]DocumentLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url %q: %w", pageURL, err)
	}

	collector := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.MaxDepth(1),
	)
	collector.SetRequestTimeout(f.fetchTimeout)

	var links []DocumentLink
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(href)), ".pdf") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)

		title := strings.TrimSpace(e.Text)
		if title == "" {
			title = abs.Path[strings.LastIndex(abs.Path, "/")+1:]
		}

		links = append(links, DocumentLink{
			URL:   abs.String(),
			Title: title,
			Kind:  classifyLink(title, abs.Path),
			Date:  parseLinkDate(title + " " + abs.Path),
		})
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("failed to fetch source page %q: %w", pageURL, err)
	}
	collector.Wait()

	return filterLinks(links, cfg), nil
}

// classifyLink decides whether a link is minutes or a board packet based on
// its visible text and path.
func classifyLink(title, path string) DocumentKind {
	haystack := strings.ToLower(title + " " + path)
	for _, hint := range packageHints {
		if strings.Contains(haystack, hint) {
			return KindPackage
		}
	}
	return KindMinutes
}

// parseLinkDate extracts the first recognizable date from s, or nil.
func parseLinkDate(s string) *time.Time {
	candidate := linkDateRe.FindString(s)
	if candidate == "" {
		return nil
	}
	candidate = strings.ReplaceAll(candidate, ".", "")
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, candidate); err == nil {
			return &t
		}
	}
	return nil
}

// filterLinks applies the job configuration: document kinds, date window, and
// the per-job cap. Links with no recognizable date pass the date filter, since
// dropping them would silently miss documents on sloppy sites.
func filterLinks(links []DocumentLink, cfg *models.JobConfig) []DocumentLink {
	filtered := make([]DocumentLink, 0, len(links))
	for _, link := range links {
		switch link.Kind {
		case KindMinutes:
			if !cfg.IncludeMinutes {
				continue
			}
		case KindPackage:
			if !cfg.IncludePackages {
				continue
			}
		}

		if link.Date != nil {
			if cfg.DateFrom != nil && link.Date.Before(*cfg.DateFrom) {
				continue
			}
			if cfg.DateTo != nil && link.Date.After(*cfg.DateTo) {
				continue
			}
		}

		filtered = append(filtered, link)
		if cfg.MaxPages > 0 && len(filtered) >= cfg.MaxPages {
			break
		}
	}
	return filtered
}

// Download fetches a document into destPath, retrying transient failures with
// exponential backoff. HTTP 4xx responses are not retried; the document is
// simply gone or forbidden. The body streams to a temp file in the same
// directory, renamed into place only on success, so board packets of any size
// never sit in memory and destPath never holds a partial document.
func (f *Fetcher) Download(ctx context.Context, docURL, destPath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	attempt := 0
	operation := func() error {
		if attempt > 0 {
			telemetry.ScrapeFetchRetriesTotal.Inc()
			slog.Debug("retrying document download", "url", docURL, "attempt", attempt)
		}
		attempt++

		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		if err := tmp.Truncate(0); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("server returned %s", resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %s", resp.Status)
		}

		if _, err := io.Copy(tmp, resp.Body); err != nil {
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.backoffInitial
	policy.MaxInterval = f.backoffMax

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(f.maxRetries)), ctx))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFetchFailed, docURL, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}
