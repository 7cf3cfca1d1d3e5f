// Package api wires together all HTTP routes for CivicScan.
//
// Route grouping philosophy:
//   - /api/v1/auth holds the public account endpoints (register, login,
//     password reset). They are unauthenticated but sit behind a stricter
//     rate limiter since they are the brute-force surface.
//   - Everything else under /api/v1 requires a valid session. Read endpoints
//     are available to any active user; mutations live under /api/v1/admin
//     behind RequireAdmin.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/api/accounts"
	"github.com/civicscan/civicscan/internal/api/admin"
	"github.com/civicscan/civicscan/internal/api/clients"
	"github.com/civicscan/civicscan/internal/api/scrapejobs"
	"github.com/civicscan/civicscan/internal/audit"
	"github.com/civicscan/civicscan/internal/auth"
	"github.com/civicscan/civicscan/internal/config"
	"github.com/civicscan/civicscan/internal/db/repositories"
	"github.com/civicscan/civicscan/internal/jobs"
	"github.com/civicscan/civicscan/internal/middleware"
	"github.com/civicscan/civicscan/internal/notify"
	"github.com/civicscan/civicscan/internal/safego"
	"github.com/civicscan/civicscan/internal/scraper"
	"github.com/civicscan/civicscan/internal/storage"
)

// BackgroundServices holds references to background workers and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal, after the HTTP server has drained in-flight requests.
type BackgroundServices struct {
	runner       *jobs.ScrapeRunner
	retention    *jobs.RetentionJob
	rateLimiters []*middleware.RateLimiter
	auditor      *audit.Recorder
}

// Shutdown stops all background goroutines. Running scrape jobs get until ctx
// expires to finish; after that they are abandoned mid-flight and will be
// re-runnable as failed jobs.
func (bg *BackgroundServices) Shutdown(ctx context.Context) {
	slog.Info("stopping background services")
	bg.retention.Stop()
	if err := bg.runner.Shutdown(ctx); err != nil {
		slog.Warn("scrape runner did not drain in time", "error", err)
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if err := bg.auditor.Close(); err != nil {
		slog.Warn("audit recorder did not close cleanly", "error", err)
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router and starts the background
// services the routes depend on. The token service is constructed by the
// caller at startup so secret validation fails before any listener opens.
func NewRouter(cfg *config.Config, db *sql.DB, tokens *auth.TokenService) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	manager, err := storage.NewManager(cfg.Storage.BasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	userRepo := repositories.NewUserRepository(db)
	jobRepo := repositories.NewJobRepository(db)
	clientRepo := repositories.NewClientRepository(db)
	keywordRepo := repositories.NewKeywordRepository(db)

	var extractor scraper.EntityExtractor
	if cfg.Scraper.EntityExtraction {
		extractor = scraper.NewProseExtractor()
	}

	pipeline := scraper.NewPipeline(scraper.Deps{
		Jobs:     jobRepo,
		Clients:  clientRepo,
		Keywords: keywordRepo,
		Storage:  manager,
		Source:   scraper.NewFetcher(cfg.Scraper),
		Entities: extractor,
	})
	runner := jobs.NewScrapeRunner(pipeline, jobRepo, cfg.Scraper.MaxConcurrentJobs)

	retention := jobs.NewRetentionJob(manager, cfg.Storage)
	safego.Go(func() {
		retention.Start(context.Background())
	})

	mailer := notify.NewMailer(cfg.Notifications)

	auditor, err := audit.NewRecorder(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit trail: %w", err)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, manager))
	router.GET("/version", versionHandler())

	accountHandlers := accounts.NewHandlers(cfg, db, tokens, mailer, auditor)
	clientHandlers := clients.NewHandlers(db)
	jobHandlers := scrapejobs.NewHandlers(cfg, db, runner, manager)
	adminHandlers := admin.NewHandlers(db, manager, auditor)

	authRateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())

	apiV1 := router.Group("/api/v1")
	{
		// Public account endpoints. No auth, stricter rate limit.
		authGroup := apiV1.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(authRateLimiter))
		{
			authGroup.POST("/register", accountHandlers.RegisterHandler())
			authGroup.POST("/login", accountHandlers.LoginHandler())
			authGroup.POST("/logout", accountHandlers.LogoutHandler())
			authGroup.POST("/password-reset/request", accountHandlers.RequestPasswordResetHandler())
			authGroup.POST("/password-reset/confirm", accountHandlers.ConfirmPasswordResetHandler())
		}

		// Everything below requires an active session.
		authenticated := apiV1.Group("")
		authenticated.Use(middleware.AuthMiddleware(cfg, tokens, userRepo))
		authenticated.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		{
			authenticated.GET("/auth/me", accountHandlers.MeHandler())

			authenticated.GET("/clients", clientHandlers.ListClientsHandler())
			authenticated.GET("/clients/:id", clientHandlers.GetClientHandler())
			authenticated.GET("/clients/:id/sources", clientHandlers.ListSourcesHandler())
			authenticated.GET("/clients/:id/keywords", clientHandlers.ListClientKeywordsHandler())
			authenticated.POST("/clients/:id/favorite", clientHandlers.FavoriteHandler())
			authenticated.DELETE("/clients/:id/favorite", clientHandlers.UnfavoriteHandler())
			authenticated.GET("/favorites", clientHandlers.ListFavoritesHandler())

			authenticated.GET("/keywords", clientHandlers.ListKeywordsHandler())

			jobsGroup := authenticated.Group("/jobs")
			{
				jobsGroup.POST("", jobHandlers.SubmitJobHandler())
				jobsGroup.GET("", jobHandlers.ListJobsHandler())
				jobsGroup.GET("/:id", jobHandlers.GetJobHandler())
				jobsGroup.POST("/:id/cancel", jobHandlers.CancelJobHandler())
				jobsGroup.GET("/:id/results", jobHandlers.ListResultsHandler())
				jobsGroup.GET("/:id/artifact", jobHandlers.DownloadArtifactHandler())
			}

			adminGroup := authenticated.Group("/admin")
			adminGroup.Use(middleware.RequireAdmin())
			{
				adminGroup.POST("/clients", clientHandlers.CreateClientHandler())
				adminGroup.PUT("/clients/:id", clientHandlers.UpdateClientHandler())
				adminGroup.DELETE("/clients/:id", clientHandlers.DeleteClientHandler())
				adminGroup.POST("/clients/:id/sources", clientHandlers.AddSourceHandler())
				adminGroup.DELETE("/clients/:id/sources/:sourceID", clientHandlers.RemoveSourceHandler())
				adminGroup.POST("/clients/:id/keywords/:keywordID", clientHandlers.AssociateKeywordHandler())
				adminGroup.DELETE("/clients/:id/keywords/:keywordID", clientHandlers.DissociateKeywordHandler())

				adminGroup.POST("/keywords", clientHandlers.CreateKeywordHandler())
				adminGroup.PUT("/keywords/:id", clientHandlers.UpdateKeywordHandler())
				adminGroup.DELETE("/keywords/:id", clientHandlers.DeleteKeywordHandler())

				adminGroup.POST("/codes", adminHandlers.CreateCodeHandler())
				adminGroup.GET("/codes", adminHandlers.ListCodesHandler())
				adminGroup.GET("/codes/:id", adminHandlers.GetCodeHandler())
				adminGroup.POST("/codes/:id/revoke", adminHandlers.RevokeCodeHandler())
				adminGroup.GET("/codes/:id/usages", adminHandlers.ListCodeUsagesHandler())

				adminGroup.GET("/users", adminHandlers.ListUsersHandler())
				adminGroup.PUT("/users/:id/active", adminHandlers.SetUserActiveHandler())

				adminGroup.GET("/dashboard", adminHandlers.DashboardHandler())
				adminGroup.GET("/storage", adminHandlers.StorageStatsHandler())
				adminGroup.DELETE("/storage/jobs/:id", adminHandlers.CleanupJobStorageHandler())
				adminGroup.POST("/storage/cleanup", adminHandlers.CleanupStorageHandler())
			}
		}
	}

	bg := &BackgroundServices{
		runner:       runner,
		retention:    retention,
		rateLimiters: []*middleware.RateLimiter{authRateLimiter, generalRateLimiter},
		auditor:      auditor,
	}

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database and storage.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: dependency not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage tree so a
// readiness gate fails when scrape jobs and artifact downloads would error.
func readinessHandler(db *sql.DB, manager *storage.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if _, err := manager.Stats(); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
