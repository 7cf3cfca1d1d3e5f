// dashboard.go implements the admin dashboard aggregates.
package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// DashboardHandler returns the aggregate snapshot and the per-client job
// outcome breakdown shown on the admin dashboard.
// GET /api/v1/admin/dashboard
func (h *Handlers) DashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.statsRepo.GetDashboardStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard stats"})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("client_limit", "10"))
		if limit < 1 || limit > 100 {
			limit = 10
		}
		outcomes, err := h.statsRepo.GetJobOutcomesByClient(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard stats"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"stats":              stats,
			"outcomes_by_client": outcomes,
		})
	}
}
