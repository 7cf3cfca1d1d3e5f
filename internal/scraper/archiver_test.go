package scraper

import (
	"archive/zip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuildArchive(t *testing.T) {
	dir := t.TempDir()

	pdfPath := filepath.Join(dir, "minutes.pdf")
	if err := os.WriteFile(pdfPath, []byte("fake pdf"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	summary := &ArchiveSummary{
		JobID:       "job-1",
		ClientID:    "client-1",
		GeneratedAt: time.Now(),
		Documents:   []string{"https://example.gov/minutes.pdf"},
		Matches: []ArchiveMatch{
			{FileName: "minutes.pdf", PageNumber: 3, Keyword: "zoning", Snippet: "..."},
		},
	}

	zipPath := filepath.Join(dir, "results.zip")
	sum, err := BuildArchive(zipPath, []string{pdfPath}, summary)
	if err != nil {
		t.Fatalf("BuildArchive: %v", err)
	}
	if len(sum) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(sum))
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["results.json"] || !names["minutes.pdf"] {
		t.Errorf("zip entries = %v", names)
	}

	rc, err := zr.Open("results.json")
	if err != nil {
		t.Fatalf("open results.json: %v", err)
	}
	defer rc.Close()

	var decoded ArchiveSummary
	if err := json.NewDecoder(rc).Decode(&decoded); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if decoded.JobID != "job-1" || len(decoded.Matches) != 1 {
		t.Errorf("summary = %+v", decoded)
	}
}

func TestBuildArchive_NoAnnotatedDocuments(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "results.zip")

	summary := &ArchiveSummary{JobID: "job-1", GeneratedAt: time.Now()}
	if _, err := BuildArchive(zipPath, nil, summary); err != nil {
		t.Fatalf("BuildArchive: %v", err)
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 {
		t.Errorf("entries = %d, want just results.json", len(zr.File))
	}
}
