package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/civicscan/civicscan/internal/config"
	"github.com/civicscan/civicscan/internal/storage"
	"github.com/civicscan/civicscan/internal/telemetry"
)

// RetentionJob periodically removes stored scrape files that have outlived
// their category's retention window. Sweeps are idempotent, so a missed or
// repeated run is harmless.
type RetentionJob struct {
	manager  *storage.Manager
	interval time.Duration
	windows  map[storage.Category]time.Duration
	stopChan chan struct{}
}

// NewRetentionJob creates a retention sweeper from the storage configuration.
func NewRetentionJob(manager *storage.Manager, cfg config.StorageConfig) *RetentionJob {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &RetentionJob{
		manager:  manager,
		interval: interval,
		windows: map[storage.Category]time.Duration{
			storage.CategoryRaw:       cfg.RawRetention,
			storage.CategoryAnnotated: cfg.AnnotatedRetention,
			storage.CategoryArtifacts: cfg.ArtifactRetention,
		},
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop. It runs one sweep immediately, then repeats on
// the configured interval until ctx is cancelled or Stop is called.
func (j *RetentionJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("retention sweeper started", "interval", j.interval)

	j.sweep()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopChan:
			slog.Info("retention sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("retention sweeper context cancelled")
			return
		}
	}
}

// Stop signals the sweep loop to exit.
func (j *RetentionJob) Stop() {
	close(j.stopChan)
}

// sweep runs one retention pass and records removal metrics.
func (j *RetentionJob) sweep() {
	counts, err := j.manager.CleanupOlderThan(j.windows, time.Now())
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
		return
	}

	total := 0
	for category, n := range counts {
		if n == 0 {
			continue
		}
		total += n
		telemetry.StorageCleanupFilesRemovedTotal.WithLabelValues(string(category)).Add(float64(n))
	}
	if total > 0 {
		slog.Info("retention sweep removed files", "files", total)
	}
}
