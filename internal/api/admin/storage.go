// storage.go implements storage administration: usage stats and manual
// cleanup of scraped files outside the scheduled retention sweep.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/audit"
	"github.com/civicscan/civicscan/internal/middleware"
	"github.com/civicscan/civicscan/internal/storage"
)

// StorageStatsHandler reports per-category storage usage.
// GET /api/v1/admin/storage
func (h *Handlers) StorageStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.storage.Stats()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read storage stats"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"storage": stats})
	}
}

// CleanupJobStorageHandler removes a job's stored files. Artifacts are kept
// unless include_artifacts=true is passed.
// DELETE /api/v1/admin/storage/jobs/:id
func (h *Handlers) CleanupJobStorageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		includeArtifacts := c.Query("include_artifacts") == "true"

		removed, err := h.storage.CleanupJob(c.Param("id"), includeArtifacts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clean up job storage"})
			return
		}

		h.auditor.Record(c.Request.Context(), audit.Event{
			Action:       audit.ActionStorageCleanup,
			ActorID:      c.GetString(middleware.UserIDKey),
			ResourceType: "scrape_job",
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Metadata:     map[string]any{"include_artifacts": includeArtifacts},
		})

		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

type cleanupRequest struct {
	OlderThanHours int `json:"older_than_hours" binding:"required,min=1"`
}

// CleanupStorageHandler removes files older than the given age across all
// categories, ahead of the scheduled retention sweep.
// POST /api/v1/admin/storage/cleanup
func (h *Handlers) CleanupStorageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cleanupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "older_than_hours must be a positive integer"})
			return
		}

		age := time.Duration(req.OlderThanHours) * time.Hour
		retention := map[storage.Category]time.Duration{
			storage.CategoryRaw:       age,
			storage.CategoryAnnotated: age,
			storage.CategoryArtifacts: age,
		}

		removed, err := h.storage.CleanupOlderThan(retention, time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clean up storage"})
			return
		}

		h.auditor.Record(c.Request.Context(), audit.Event{
			Action:    audit.ActionStorageCleanup,
			ActorID:   c.GetString(middleware.UserIDKey),
			IPAddress: c.ClientIP(),
			Metadata:  map[string]any{"older_than_hours": req.OlderThanHours},
		})

		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}
