// sources.go implements management of the page URLs scanned when a client is
// scraped.
package clients

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/db/models"
)

type sourceRequest struct {
	URL   string  `json:"url" binding:"required"`
	Label *string `json:"label"`
}

// AddSourceHandler attaches a source URL to a client.
// POST /api/v1/admin/clients/:id/sources
func (h *Handlers) AddSourceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		req.URL = strings.TrimSpace(req.URL)
		parsed, err := url.ParseRequestURI(req.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Source URL must be a valid http or https URL"})
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

		source := &models.ClientSource{
			ClientID: client.ID,
			URL:      req.URL,
			Label:    req.Label,
		}
		if err := h.clientRepo.AddSource(c.Request.Context(), source); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add source"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"source": source})
	}
}

// ListSourcesHandler lists a client's source URLs.
// GET /api/v1/clients/:id/sources
func (h *Handlers) ListSourcesHandler() gin.HandlerFunc {
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

		sources, err := h.clientRepo.ListSources(c.Request.Context(), client.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sources"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"sources": sources})
	}
}

// RemoveSourceHandler detaches a source URL from a client.
// DELETE /api/v1/admin/clients/:id/sources/:sourceID
func (h *Handlers) RemoveSourceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.clientRepo.RemoveSource(c.Request.Context(), c.Param("sourceID")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove source"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Source removed"})
	}
}
