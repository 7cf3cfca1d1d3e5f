// Package scrapejobs implements the scrape job endpoints: submission,
// status, cancellation, match results, and artifact download.
package scrapejobs

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/config"
	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/internal/db/repositories"
	"github.com/civicscan/civicscan/internal/middleware"
	"github.com/civicscan/civicscan/internal/scraper"
	"github.com/civicscan/civicscan/internal/storage"
)

// Runner schedules job execution. Implemented by jobs.ScrapeRunner.
type Runner interface {
	Submit(jobID string) error
	Cancel(ctx context.Context, jobID string) error
}

// Handlers serves the scrape job endpoints.
type Handlers struct {
	cfg        *config.Config
	jobRepo    *repositories.JobRepository
	clientRepo *repositories.ClientRepository
	runner     Runner
	storage    *storage.Manager
}

// NewHandlers creates the scrape job handlers.
func NewHandlers(cfg *config.Config, db *sql.DB, runner Runner, manager *storage.Manager) *Handlers {
	return &Handlers{
		cfg:        cfg,
		jobRepo:    repositories.NewJobRepository(db),
		clientRepo: repositories.NewClientRepository(db),
		runner:     runner,
		storage:    manager,
	}
}

func pagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage, (page - 1) * perPage
}

type submitRequest struct {
	ClientID        string     `json:"client_id" binding:"required"`
	DateFrom        *time.Time `json:"date_from"`
	DateTo          *time.Time `json:"date_to"`
	MaxPages        int        `json:"max_pages"`
	IncludeMinutes  *bool      `json:"include_minutes"`
	IncludePackages *bool      `json:"include_packages"`
}

// SubmitJobHandler queues a scrape job for a client. The job runs in the
// background; the response carries the job in its pending state.
// POST /api/v1/jobs
func (h *Handlers) SubmitJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.DateFrom != nil && req.DateTo != nil && req.DateTo.Before(*req.DateFrom) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_to must not be before date_from"})
			return
		}

		client, err := h.clientRepo.GetClientByID(c.Request.Context(), req.ClientID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch client"})
			return
		}
		if client == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
			return
		}
		if !client.IsActive {
			c.JSON(http.StatusConflict, gin.H{"error": "Client is deactivated"})
			return
		}

		maxPages := req.MaxPages
		if maxPages <= 0 {
			maxPages = h.cfg.Scraper.MaxPagesDefault
		}
		includeMinutes := req.IncludeMinutes == nil || *req.IncludeMinutes
		includePackages := req.IncludePackages == nil || *req.IncludePackages
		if !includeMinutes && !includePackages {
			c.JSON(http.StatusBadRequest, gin.H{"error": "At least one document type must be included"})
			return
		}

		job := &models.ScrapeJob{
			ClientID:  client.ID,
			CreatedBy: c.GetString(middleware.UserIDKey),
		}
		jobConfig := &models.JobConfig{
			DateFrom:        req.DateFrom,
			DateTo:          req.DateTo,
			MaxPages:        maxPages,
			IncludeMinutes:  includeMinutes,
			IncludePackages: includePackages,
		}
		if err := h.jobRepo.CreateJob(c.Request.Context(), job, jobConfig); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
			return
		}

		if err := h.runner.Submit(job.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule job"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"job": job, "config": jobConfig})
	}
}

// GetJobHandler returns a job and its captured configuration.
// GET /api/v1/jobs/:id
func (h *Handlers) GetJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := h.jobRepo.GetJob(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}

		jobConfig, err := h.jobRepo.GetConfig(c.Request.Context(), job.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"job": job, "config": jobConfig})
	}
}

// ListJobsHandler lists jobs, optionally filtered by client.
// GET /api/v1/jobs
func (h *Handlers) ListJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		jobs, total, err := h.jobRepo.ListJobs(c.Request.Context(), c.Query("client_id"), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"jobs":     jobs,
			"total":    total,
			"page":     page,
			"per_page": perPage,
		})
	}
}

// CancelJobHandler cancels a pending or running job. Cancelling a job that
// already reached a terminal state is a conflict.
// POST /api/v1/jobs/:id/cancel
func (h *Handlers) CancelJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := h.jobRepo.GetJob(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}

		if err := h.runner.Cancel(c.Request.Context(), job.ID); err != nil {
			if errors.Is(err, scraper.ErrInvalidTransition) {
				c.JSON(http.StatusConflict, gin.H{"error": "Job has already finished"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel job"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Job cancelled"})
	}
}

// ListResultsHandler lists the keyword matches a job produced.
// GET /api/v1/jobs/:id/results
func (h *Handlers) ListResultsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := h.jobRepo.GetJob(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}

		page, perPage, offset := pagination(c)
		results, total, err := h.jobRepo.ListResults(c.Request.Context(), job.ID, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list results"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"results":  results,
			"total":    total,
			"page":     page,
			"per_page": perPage,
		})
	}
}

// DownloadArtifactHandler streams the zip archive a completed job produced.
// GET /api/v1/jobs/:id/artifact
func (h *Handlers) DownloadArtifactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := h.jobRepo.GetJob(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		if job.Status != models.JobStatusCompleted {
			c.JSON(http.StatusConflict, gin.H{"error": "Job has not completed"})
			return
		}

		path := h.storage.FilePath(job.ID, storage.CategoryArtifacts, scraper.ArchiveName)
		if _, err := os.Stat(path); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Artifact not found"})
			return
		}

		c.FileAttachment(path, job.ID+".zip")
	}
}
