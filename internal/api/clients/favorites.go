// favorites.go implements per-user client favorites.
package clients

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/middleware"
)

// FavoriteHandler pins a client for the authenticated user. Favoriting an
// already-favorited client succeeds without effect.
// POST /api/v1/clients/:id/favorite
func (h *Handlers) FavoriteHandler() gin.HandlerFunc {
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

		userID := c.GetString(middleware.UserIDKey)
		if err := h.clientRepo.Favorite(c.Request.Context(), userID, client.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to favorite client"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Client favorited"})
	}
}

// UnfavoriteHandler unpins a client for the authenticated user.
// DELETE /api/v1/clients/:id/favorite
func (h *Handlers) UnfavoriteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.UserIDKey)
		if err := h.clientRepo.Unfavorite(c.Request.Context(), userID, c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unfavorite client"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Client unfavorited"})
	}
}

// ListFavoritesHandler lists the authenticated user's favorited clients.
// GET /api/v1/favorites
func (h *Handlers) ListFavoritesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.UserIDKey)
		favorites, err := h.clientRepo.ListFavorites(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list favorites"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"favorites": favorites})
	}
}
