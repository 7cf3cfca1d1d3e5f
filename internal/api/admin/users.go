// users.go implements the admin user listing and activation toggles.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/audit"
	"github.com/civicscan/civicscan/internal/middleware"
)

// ListUsersHandler lists registered users with pagination.
// GET /api/v1/admin/users
func (h *Handlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		users, total, err := h.userRepo.ListUsers(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users":    users,
			"total":    total,
			"page":     page,
			"per_page": perPage,
		})
	}
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetUserActiveHandler activates or deactivates an account. Deactivated users
// keep their rows and history but cannot authenticate. Admins cannot
// deactivate themselves.
// PUT /api/v1/admin/users/:id/active
func (h *Handlers) SetUserActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		if !*req.IsActive && user.ID == c.GetString(middleware.UserIDKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Cannot deactivate your own account"})
			return
		}

		user.IsActive = *req.IsActive
		if err := h.userRepo.UpdateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}

		h.auditor.Record(c.Request.Context(), audit.Event{
			Action:       audit.ActionUserSetActive,
			ActorID:      c.GetString(middleware.UserIDKey),
			ResourceType: "user",
			ResourceID:   user.ID,
			IPAddress:    c.ClientIP(),
			Metadata:     map[string]any{"is_active": user.IsActive},
		})

		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}
