// errors.go defines the sentinel errors of the scrape pipeline. Callers use
// errors.Is against these to map failures to HTTP responses or retry
// decisions without parsing error strings.
package scraper

import "errors"

var (
	// ErrJobNotFound indicates no job exists with the given ID.
	ErrJobNotFound = errors.New("scrape job not found")

	// ErrInvalidTransition indicates a lifecycle transition was rejected, for
	// example executing a job that is not pending or cancelling a terminal job.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrAllSourcesFailed indicates every source page of a job failed to
	// fetch. Partial source failures do not produce this error; the job
	// completes with the documents it could get.
	ErrAllSourcesFailed = errors.New("all scrape sources failed")

	// ErrFetchFailed indicates one document download failed after all
	// retries. It isolates the failure to a single file.
	ErrFetchFailed = errors.New("document fetch failed")

	// ErrExtractFailed indicates a downloaded PDF could not be parsed.
	ErrExtractFailed = errors.New("pdf text extraction failed")
)
