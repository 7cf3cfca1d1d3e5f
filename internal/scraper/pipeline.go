// pipeline.go orchestrates one scrape job end to end: discover documents on
// each client source, download, extract text, match keywords, extract
// entities, annotate matched documents, persist results, and package the
// artifact zip.
//
// Failure isolation works at two levels. A document that fails to download or
// parse is skipped and the rest of its source continues. A source page that
// fails entirely is skipped and the remaining sources continue. Only when
// every source fails does the job itself fail.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"time"

	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/internal/storage"
	"github.com/civicscan/civicscan/internal/telemetry"
)

// JobStore is the slice of the job repository the pipeline needs.
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*models.ScrapeJob, error)
	GetConfig(ctx context.Context, jobID string) (*models.JobConfig, error)
	MarkRunning(ctx context.Context, jobID string) (bool, error)
	Complete(ctx context.Context, jobID string) (bool, error)
	Fail(ctx context.Context, jobID, message string) (bool, error)
	InsertResults(ctx context.Context, jobID string, results []*models.ScrapeResult) error
}

// ClientStore is the slice of the client repository the pipeline needs.
type ClientStore interface {
	GetClientByID(ctx context.Context, clientID string) (*models.Client, error)
	ListSources(ctx context.Context, clientID string) ([]*models.ClientSource, error)
}

// KeywordStore is the slice of the keyword repository the pipeline needs.
type KeywordStore interface {
	ListForClient(ctx context.Context, clientID string, activeOnly bool) ([]*models.Keyword, error)
}

// DocumentSource abstracts the fetcher for testing. Download writes the
// document to destPath, leaving no file behind on failure.
type DocumentSource interface {
	Discover(ctx context.Context, pageURL string, cfg *models.JobConfig) ([]DocumentLink, error)
	Download(ctx context.Context, docURL, destPath string) error
}

// Deps bundles the pipeline's collaborators. ExtractPages and Annotate
// default to the real PDF implementations when nil; tests substitute fakes.
// Entities may be nil to disable entity extraction.
type Deps struct {
	Jobs     JobStore
	Clients  ClientStore
	Keywords KeywordStore
	Storage  *storage.Manager
	Source   DocumentSource
	Entities EntityExtractor

	ExtractPages func(path string) ([]string, error)
	Annotate     func(src, dest string, matches []Match) error
}

// Pipeline executes scrape jobs.
type Pipeline struct {
	deps Deps
}

// NewPipeline creates a Pipeline, filling in the default PDF hooks.
func NewPipeline(deps Deps) *Pipeline {
	if deps.ExtractPages == nil {
		deps.ExtractPages = ExtractPages
	}
	if deps.Annotate == nil {
		deps.Annotate = Annotate
	}
	return &Pipeline{deps: deps}
}

// Execute runs the job with the given ID to a terminal state. It returns
// ErrJobNotFound for unknown jobs and ErrInvalidTransition when the job is
// not pending, which makes duplicate executions harmless: the second caller
// is rejected before any work happens.
//
// When ctx is cancelled mid-job, Execute stops between documents and returns
// ctx.Err(). It does not write a terminal status in that case; cancellation
// is recorded by whoever cancelled the context (the runner's Cancel path).
func (p *Pipeline) Execute(ctx context.Context, jobID string) error {
	job, err := p.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return ErrJobNotFound
	}

	changed, err := p.deps.Jobs.MarkRunning(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}
	if !changed {
		return fmt.Errorf("%w: job %s is %s, not pending", ErrInvalidTransition, jobID, job.Status)
	}

	start := time.Now()
	err = p.run(ctx, job)
	telemetry.ScrapeJobDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		if changed, cerr := p.deps.Jobs.Complete(ctx, jobID); cerr != nil {
			return fmt.Errorf("failed to complete job: %w", cerr)
		} else if changed {
			telemetry.ScrapeJobsCompletedTotal.WithLabelValues(string(models.JobStatusCompleted)).Inc()
		}
		return nil

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		telemetry.ScrapeJobsCompletedTotal.WithLabelValues(string(models.JobStatusCancelled)).Inc()
		return err

	default:
		if changed, ferr := p.deps.Jobs.Fail(ctx, jobID, err.Error()); ferr != nil {
			slog.Error("failed to record job failure", "job_id", jobID, "error", ferr)
		} else if changed {
			telemetry.ScrapeJobsCompletedTotal.WithLabelValues(string(models.JobStatusFailed)).Inc()
		}
		return err
	}
}

func (p *Pipeline) run(ctx context.Context, job *models.ScrapeJob) error {
	config, err := p.deps.Jobs.GetConfig(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load job config: %w", err)
	}
	if config == nil {
		config = &models.JobConfig{JobID: job.ID, MaxPages: 25, IncludeMinutes: true}
	}

	sources, err := p.deps.Clients.ListSources(ctx, job.ClientID)
	if err != nil {
		return fmt.Errorf("failed to load client sources: %w", err)
	}

	keywords, err := p.deps.Keywords.ListForClient(ctx, job.ClientID, true)
	if err != nil {
		return fmt.Errorf("failed to load keywords: %w", err)
	}

	// Nothing to scan for, or nowhere to scan: the job completes empty
	// rather than failing, since both are legitimate configurations.
	if len(sources) == 0 || len(keywords) == 0 {
		slog.Info("job has no work", "job_id", job.ID,
			"sources", len(sources), "keywords", len(keywords))
		return nil
	}

	var (
		results        []*models.ScrapeResult
		annotatedPaths []string
		documents      []string
		failedSources  int
		docSeq         int
	)

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		links, err := p.deps.Source.Discover(ctx, source.URL, config)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			failedSources++
			slog.Warn("source page failed", "job_id", job.ID, "url", source.URL, "error", err)
			continue
		}

		for _, link := range links {
			if err := ctx.Err(); err != nil {
				return err
			}

			// Different sources routinely publish documents under the same
			// basename (minutes.pdf), so stored names carry a per-document
			// sequence number to keep them distinct.
			docSeq++
			fileName := fmt.Sprintf("%03d_%s", docSeq, safeFileName(link))

			docResults, annotatedPath, err := p.processDocument(ctx, job, link, fileName, keywords)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				slog.Warn("document failed", "job_id", job.ID, "url", link.URL, "error", err)
				continue
			}

			// Persist each document's matches as soon as it is processed, so
			// results from documents already scanned survive a later failure
			// or cancellation.
			if len(docResults) > 0 {
				if err := p.deps.Jobs.InsertResults(ctx, job.ID, docResults); err != nil {
					return fmt.Errorf("failed to store results: %w", err)
				}
				telemetry.ScrapeMatchesFoundTotal.Add(float64(len(docResults)))
			}

			documents = append(documents, link.URL)
			results = append(results, docResults...)
			if annotatedPath != "" {
				annotatedPaths = append(annotatedPaths, annotatedPath)
			}
		}
	}

	if failedSources == len(sources) {
		return fmt.Errorf("%w: %d sources", ErrAllSourcesFailed, len(sources))
	}

	if err := p.buildArtifact(job, documents, results, annotatedPaths); err != nil {
		return err
	}

	slog.Info("job finished", "job_id", job.ID,
		"documents", len(documents), "matches", len(results))
	return nil
}

// processDocument downloads, extracts, matches, and annotates one document.
// It returns the match results and the annotated copy's path ("" when the
// document had no matches).
func (p *Pipeline) processDocument(ctx context.Context, job *models.ScrapeJob, link DocumentLink, fileName string, keywords []*models.Keyword) ([]*models.ScrapeResult, string, error) {
	rawPath := p.deps.Storage.FilePath(job.ID, storage.CategoryRaw, fileName)
	if _, err := p.deps.Storage.EnsureDir(job.ID, storage.CategoryRaw); err != nil {
		return nil, "", err
	}
	if err := p.deps.Source.Download(ctx, link.URL, rawPath); err != nil {
		telemetry.ScrapeFetchFailuresTotal.Inc()
		return nil, "", err
	}
	telemetry.ScrapeDocumentsFetchedTotal.WithLabelValues(string(link.Kind)).Inc()

	pages, err := p.deps.ExtractPages(rawPath)
	if err != nil {
		return nil, "", err
	}
	telemetry.ScrapePagesScannedTotal.Add(float64(len(pages)))

	matches := FindMatches(pages, keywords)
	if len(matches) == 0 {
		return nil, "", nil
	}

	results := make([]*models.ScrapeResult, 0, len(matches))
	for _, match := range matches {
		result := &models.ScrapeResult{
			FileName:   fileName,
			PageNumber: match.PageNumber,
			KeywordID:  match.KeywordID,
			Keyword:    match.Term,
			Snippet:    match.Snippet,
		}
		if p.deps.Entities != nil {
			set, err := p.deps.Entities.Extract(pages[match.PageNumber-1])
			if err != nil {
				slog.Debug("entity extraction failed", "job_id", job.ID,
					"file", fileName, "page", match.PageNumber, "error", err)
			} else if !set.IsEmpty() {
				result.Entities = set
			}
		}
		results = append(results, result)
	}

	if _, err := p.deps.Storage.EnsureDir(job.ID, storage.CategoryAnnotated); err != nil {
		return nil, "", err
	}
	annotatedPath := p.deps.Storage.FilePath(job.ID, storage.CategoryAnnotated, fileName)
	if err := p.deps.Annotate(rawPath, annotatedPath, matches); err != nil {
		// Annotation is presentation, not data: keep the results.
		slog.Warn("annotation failed", "job_id", job.ID, "file", fileName, "error", err)
		return results, "", nil
	}

	return results, annotatedPath, nil
}

// buildArtifact packages annotated documents and the results summary.
func (p *Pipeline) buildArtifact(job *models.ScrapeJob, documents []string, results []*models.ScrapeResult, annotatedPaths []string) error {
	if _, err := p.deps.Storage.EnsureDir(job.ID, storage.CategoryArtifacts); err != nil {
		return err
	}

	summary := &ArchiveSummary{
		JobID:       job.ID,
		ClientID:    job.ClientID,
		GeneratedAt: time.Now(),
		Documents:   documents,
		Matches:     make([]ArchiveMatch, 0, len(results)),
	}
	for _, result := range results {
		summary.Matches = append(summary.Matches, ArchiveMatch{
			FileName:   result.FileName,
			PageNumber: result.PageNumber,
			Keyword:    result.Keyword,
			Snippet:    result.Snippet,
			Entities:   result.Entities,
		})
	}

	zipPath := p.deps.Storage.FilePath(job.ID, storage.CategoryArtifacts, ArchiveName)
	sum, err := BuildArchive(zipPath, annotatedPaths, summary)
	if err != nil {
		return fmt.Errorf("failed to build artifact: %w", err)
	}

	slog.Debug("artifact built", "job_id", job.ID, "path", zipPath, "sha256", sum)
	return nil
}

// safeFileName derives a stored file name from a link's URL path.
func safeFileName(link DocumentLink) string {
	u, err := url.Parse(link.URL)
	if err != nil {
		return "document.pdf"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "document.pdf"
	}
	return name
}
