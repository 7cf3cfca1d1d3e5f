// keywords.go implements keyword management and the client-keyword
// association that selects which terms a client's scrape jobs look for.
package clients

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/internal/middleware"
)

type keywordRequest struct {
	Term     string  `json:"term" binding:"required"`
	Category *string `json:"category"`
}

// CreateKeywordHandler adds a search term to the global keyword pool.
// POST /api/v1/admin/keywords
func (h *Handlers) CreateKeywordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req keywordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		req.Term = strings.TrimSpace(req.Term)
		if req.Term == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Keyword term is required"})
			return
		}

		keyword := &models.Keyword{
			Term:      req.Term,
			Category:  req.Category,
			CreatedBy: c.GetString(middleware.UserIDKey),
		}
		if err := h.keywordRepo.CreateKeyword(c.Request.Context(), keyword); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create keyword"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"keyword": keyword})
	}
}

// ListKeywordsHandler lists keywords with pagination.
// GET /api/v1/keywords
func (h *Handlers) ListKeywordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		includeInactive := false
		if c.Query("include_inactive") == "true" {
			user := middleware.CurrentUser(c)
			includeInactive = user != nil && user.IsAdmin()
		}

		keywords, total, err := h.keywordRepo.ListKeywords(c.Request.Context(), perPage, offset, includeInactive)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list keywords"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"keywords": keywords,
			"total":    total,
			"page":     page,
			"per_page": perPage,
		})
	}
}

// UpdateKeywordHandler updates a keyword's term and category. Existing scrape
// results keep the term they matched under.
// PUT /api/v1/admin/keywords/:id
func (h *Handlers) UpdateKeywordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req keywordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		req.Term = strings.TrimSpace(req.Term)
		if req.Term == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Keyword term is required"})
			return
		}

		keyword, err := h.keywordRepo.GetKeywordByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch keyword"})
			return
		}
		if keyword == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Keyword not found"})
			return
		}

		keyword.Term = req.Term
		keyword.Category = req.Category
		if err := h.keywordRepo.UpdateKeyword(c.Request.Context(), keyword); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update keyword"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"keyword": keyword})
	}
}

// DeleteKeywordHandler deactivates a keyword. It stops matching in new jobs;
// past results are untouched.
// DELETE /api/v1/admin/keywords/:id
func (h *Handlers) DeleteKeywordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyword, err := h.keywordRepo.GetKeywordByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch keyword"})
			return
		}
		if keyword == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Keyword not found"})
			return
		}

		if err := h.keywordRepo.DeactivateKeyword(c.Request.Context(), keyword.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate keyword"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Keyword deactivated"})
	}
}

// AssociateKeywordHandler links a keyword to a client. Re-linking an existing
// pair succeeds without effect.
// POST /api/v1/admin/clients/:id/keywords/:keywordID
func (h *Handlers) AssociateKeywordHandler() gin.HandlerFunc {
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

		keyword, err := h.keywordRepo.GetKeywordByID(c.Request.Context(), c.Param("keywordID"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch keyword"})
			return
		}
		if keyword == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Keyword not found"})
			return
		}

		if err := h.keywordRepo.Associate(c.Request.Context(), client.ID, keyword.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to associate keyword"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Keyword associated"})
	}
}

// DissociateKeywordHandler unlinks a keyword from a client.
// DELETE /api/v1/admin/clients/:id/keywords/:keywordID
func (h *Handlers) DissociateKeywordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.keywordRepo.Dissociate(c.Request.Context(), c.Param("id"), c.Param("keywordID")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dissociate keyword"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Keyword dissociated"})
	}
}

// ListClientKeywordsHandler lists the active keywords linked to a client.
// GET /api/v1/clients/:id/keywords
func (h *Handlers) ListClientKeywordsHandler() gin.HandlerFunc {
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

		keywords, err := h.keywordRepo.ListForClient(c.Request.Context(), client.ID, true)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list keywords"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"keywords": keywords})
	}
}
