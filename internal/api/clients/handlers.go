// Package clients implements the municipal client endpoints: client CRUD,
// scrape source management, keyword management and association, and per-user
// favorites. Write operations are admin-only and mounted under /admin by the
// router; reads are available to any authenticated user.
package clients

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/internal/db/repositories"
	"github.com/civicscan/civicscan/internal/middleware"
)

// Handlers serves the client, keyword, and favorite endpoints.
type Handlers struct {
	clientRepo  *repositories.ClientRepository
	keywordRepo *repositories.KeywordRepository
}

// NewHandlers creates the client handlers.
func NewHandlers(db *sql.DB) *Handlers {
	return &Handlers{
		clientRepo:  repositories.NewClientRepository(db),
		keywordRepo: repositories.NewKeywordRepository(db),
	}
}

// pagination parses page/per_page query parameters. Defaults to page 1 with
// 20 items, capped at 100 per page.
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

type clientRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
}

// CreateClientHandler registers a new municipal client.
// POST /api/v1/admin/clients
func (h *Handlers) CreateClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req clientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Client name is required"})
			return
		}

		client := &models.Client{
			Name:        req.Name,
			Description: req.Description,
			CreatedBy:   c.GetString(middleware.UserIDKey),
		}
		if err := h.clientRepo.CreateClient(c.Request.Context(), client); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create client"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"client": client})
	}
}

// ListClientsHandler lists clients with pagination. Deactivated clients are
// included only when an admin asks for them.
// GET /api/v1/clients
func (h *Handlers) ListClientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		includeInactive := false
		if c.Query("include_inactive") == "true" {
			user := middleware.CurrentUser(c)
			includeInactive = user != nil && user.IsAdmin()
		}

		clients, total, err := h.clientRepo.ListClients(c.Request.Context(), perPage, offset, includeInactive)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list clients"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"clients":  clients,
			"total":    total,
			"page":     page,
			"per_page": perPage,
		})
	}
}

// GetClientHandler returns a single client.
// GET /api/v1/clients/:id
func (h *Handlers) GetClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		client, err := h.clientRepo.GetClientByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch client"})
			return
		}
		if client == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"client": client})
	}
}

// UpdateClientHandler updates a client's name and description.
// PUT /api/v1/admin/clients/:id
func (h *Handlers) UpdateClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req clientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Client name is required"})
			return
		}

		client, err := h.clientRepo.GetClientByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch client"})
			return
		}
		if client == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
			return
		}

		client.Name = req.Name
		client.Description = req.Description
		if err := h.clientRepo.UpdateClient(c.Request.Context(), client); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update client"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"client": client})
	}
}

// DeleteClientHandler deactivates a client. The row stays so historical jobs
// keep their referent.
// DELETE /api/v1/admin/clients/:id
func (h *Handlers) DeleteClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		client, err := h.clientRepo.GetClientByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch client"})
			return
		}
		if client == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
			return
		}

		if err := h.clientRepo.DeactivateClient(c.Request.Context(), client.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate client"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Client deactivated"})
	}
}
