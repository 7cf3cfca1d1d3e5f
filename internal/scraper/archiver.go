// archiver.go packages a job's annotated documents and a machine-readable
// results summary into a single zip artifact for download.
package scraper

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/pkg/checksum"
)

// ArchiveName is the file name every job's artifact zip is written under.
const ArchiveName = "results.zip"

// ArchiveSummary is the results.json document placed in every artifact zip.
type ArchiveSummary struct {
	JobID       string         `json:"job_id"`
	ClientID    string         `json:"client_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Documents   []string       `json:"documents"`
	Matches     []ArchiveMatch `json:"matches"`
}

// ArchiveMatch is one match row in the summary.
type ArchiveMatch struct {
	FileName   string            `json:"file_name"`
	PageNumber int               `json:"page_number"`
	Keyword    string            `json:"keyword"`
	Snippet    string            `json:"snippet"`
	Entities   *models.EntitySet `json:"entities,omitempty"`
}

// BuildArchive writes a zip at zipPath containing the given annotated PDFs
// and the summary as results.json, and returns the archive's SHA-256.
func BuildArchive(zipPath string, pdfPaths []string, summary *ArchiveSummary) (string, error) {
	out, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(out)

	summaryBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		out.Close()
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	w, err := zw.Create("results.json")
	if err != nil {
		out.Close()
		return "", fmt.Errorf("failed to add summary: %w", err)
	}
	if _, err := w.Write(summaryBytes); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to write summary: %w", err)
	}

	for _, path := range pdfPaths {
		if err := addFile(zw, path); err != nil {
			out.Close()
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive: %w", err)
	}

	f, err := os.Open(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to reopen archive: %w", err)
	}
	defer f.Close()

	sum, err := checksum.CalculateSHA256(f)
	if err != nil {
		return "", fmt.Errorf("failed to checksum archive: %w", err)
	}
	return sum, nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", path, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
