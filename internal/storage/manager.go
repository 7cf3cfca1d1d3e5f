// Package storage manages the on-disk layout for scrape job outputs.
//
// Layout: <base>/<category>/<jobID>/<file>, with three categories:
//
//	raw        — PDFs as downloaded from agency sites
//	annotated  — copies with match highlights and bookmarks
//	artifacts  — packaged zip archives served to users
//
// Directories are created lazily on first write. Cleanup operations are
// idempotent: removing a job that has no stored files succeeds with zero
// counts, so retries and double-deletes are harmless.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Category identifies one of the storage trees.
type Category string

const (
	CategoryRaw       Category = "raw"
	CategoryAnnotated Category = "annotated"
	CategoryArtifacts Category = "artifacts"
)

// Categories lists all storage categories in cleanup order.
var Categories = []Category{CategoryRaw, CategoryAnnotated, CategoryArtifacts}

// CategoryStats aggregates usage for one category.
type CategoryStats struct {
	Jobs  int   `json:"jobs"`
	Files int   `json:"files"`
	Bytes int64 `json:"bytes"`
}

// CleanupCounts reports how many files each category lost during a cleanup.
type CleanupCounts map[Category]int

// Manager owns the storage tree under a base directory.
type Manager struct {
	base string
}

// NewManager creates a Manager rooted at base. The base directory itself is
// created eagerly so a misconfigured path fails at startup, not mid-job.
func NewManager(base string) (*Manager, error) {
	if base == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage base: %w", err)
	}
	return &Manager{base: base}, nil
}

// PathFor returns the directory for a job's files in a category. It is a pure
// path computation; nothing is created.
func (m *Manager) PathFor(jobID string, category Category) string {
	return filepath.Join(m.base, string(category), jobID)
}

// FilePath returns the full path for a named file in a job's category
// directory. The file name is flattened to its base to keep traversal
// sequences out of the tree.
func (m *Manager) FilePath(jobID string, category Category, name string) string {
	return filepath.Join(m.PathFor(jobID, category), filepath.Base(name))
}

// EnsureDir creates the directory for a job's files in a category.
func (m *Manager) EnsureDir(jobID string, category Category) (string, error) {
	dir := m.PathFor(jobID, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage dir: %w", err)
	}
	return dir, nil
}

// Write stores the contents of r as a named file in a job's category
// directory, creating the directory if needed, and returns the stored path
// and byte count.
func (m *Manager) Write(jobID string, category Category, name string, r io.Reader) (string, int64, error) {
	if _, err := m.EnsureDir(jobID, category); err != nil {
		return "", 0, err
	}

	path := m.FilePath(jobID, category, name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}

	return path, n, nil
}

// CleanupJob removes a job's stored files. Raw and annotated files always go;
// artifacts only when includeArtifacts is set, since users may still want the
// packaged zip after intermediate files are purged. Returns per-category file
// counts. Cleaning a job with nothing stored is a no-op.
func (m *Manager) CleanupJob(jobID string, includeArtifacts bool) (CleanupCounts, error) {
	counts := CleanupCounts{}

	categories := []Category{CategoryRaw, CategoryAnnotated}
	if includeArtifacts {
		categories = append(categories, CategoryArtifacts)
	}

	for _, category := range categories {
		dir := m.PathFor(jobID, category)
		n, err := countFiles(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s storage: %w", category, err)
		}
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to remove %s storage: %w", category, err)
		}
		counts[category] = n
	}

	return counts, nil
}

// CleanupOlderThan removes job directories whose newest file is older than
// the category's retention window. Categories absent from the map are left
// untouched. Returns per-category file counts removed.
func (m *Manager) CleanupOlderThan(retention map[Category]time.Duration, now time.Time) (CleanupCounts, error) {
	counts := CleanupCounts{}

	for category, window := range retention {
		if window <= 0 {
			continue
		}
		cutoff := now.Add(-window)

		categoryDir := filepath.Join(m.base, string(category))
		entries, err := os.ReadDir(categoryDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s storage: %w", category, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			jobDir := filepath.Join(categoryDir, entry.Name())
			newest, err := newestModTime(jobDir)
			if err != nil {
				return nil, fmt.Errorf("failed to inspect %s: %w", jobDir, err)
			}
			if newest.After(cutoff) {
				continue
			}
			n, err := countFiles(jobDir)
			if err != nil {
				return nil, err
			}
			if err := os.RemoveAll(jobDir); err != nil {
				return nil, fmt.Errorf("failed to remove %s: %w", jobDir, err)
			}
			counts[category] += n
		}
	}

	return counts, nil
}

// Stats walks the storage tree once and aggregates per-category usage.
func (m *Manager) Stats() (map[Category]CategoryStats, error) {
	stats := make(map[Category]CategoryStats, len(Categories))

	for _, category := range Categories {
		categoryDir := filepath.Join(m.base, string(category))
		entries, err := os.ReadDir(categoryDir)
		if os.IsNotExist(err) {
			stats[category] = CategoryStats{}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s storage: %w", category, err)
		}

		var cs CategoryStats
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			cs.Jobs++
			err := filepath.Walk(filepath.Join(categoryDir, entry.Name()), func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() {
					cs.Files++
					cs.Bytes += info.Size()
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to walk %s storage: %w", category, err)
			}
		}
		stats[category] = cs
	}

	return stats, nil
}

// countFiles returns the number of regular files under dir. A missing dir
// counts as zero.
func countFiles(dir string) (int, error) {
	n := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// newestModTime returns the most recent modification time of any file or
// directory under dir, including dir itself.
func newestModTime(dir string) (time.Time, error) {
	var newest time.Time
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return newest, nil
}
