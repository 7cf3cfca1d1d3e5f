// Package admin implements the admin-only endpoints: invitation code
// management, user listing, the dashboard aggregates, and storage
// administration. The router mounts every route here behind RequireAdmin.
package admin

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/audit"
	"github.com/civicscan/civicscan/internal/authcode"
	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/internal/db/repositories"
	"github.com/civicscan/civicscan/internal/middleware"
	"github.com/civicscan/civicscan/internal/storage"
)

// Handlers serves the admin endpoints.
type Handlers struct {
	codeRepo  *repositories.AuthCodeRepository
	userRepo  *repositories.UserRepository
	statsRepo *repositories.StatsRepository
	storage   *storage.Manager
	auditor   *audit.Recorder
}

// NewHandlers creates the admin handlers.
func NewHandlers(db *sql.DB, manager *storage.Manager, auditor *audit.Recorder) *Handlers {
	return &Handlers{
		codeRepo:  repositories.NewAuthCodeRepository(db),
		userRepo:  repositories.NewUserRepository(db),
		statsRepo: repositories.NewStatsRepository(db),
		storage:   manager,
		auditor:   auditor,
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

type createCodeRequest struct {
	MaxUses   int        `json:"max_uses"`
	ExpiresAt *time.Time `json:"expires_at"`
	Notes     *string    `json:"notes"`
}

// CreateCodeHandler mints a new invitation code. The response includes the
// grouped display form; the code is stored and matched in its normalized form.
// POST /api/v1/admin/codes
func (h *Handlers) CreateCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.MaxUses < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_uses must not be negative"})
			return
		}
		if req.MaxUses == 0 {
			req.MaxUses = 1
		}
		if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be in the future"})
			return
		}

		raw, err := authcode.Generate()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate code"})
			return
		}

		code := &models.AuthCode{
			Code:      raw,
			CreatedBy: c.GetString(middleware.UserIDKey),
			ExpiresAt: req.ExpiresAt,
			MaxUses:   req.MaxUses,
			Notes:     req.Notes,
		}
		if err := h.codeRepo.CreateCode(c.Request.Context(), code); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create code"})
			return
		}

		h.auditor.Record(c.Request.Context(), audit.Event{
			Action:       audit.ActionCodeCreate,
			ActorID:      code.CreatedBy,
			ResourceType: "auth_code",
			ResourceID:   code.ID,
			IPAddress:    c.ClientIP(),
			Metadata:     map[string]any{"max_uses": code.MaxUses},
		})

		c.JSON(http.StatusCreated, gin.H{
			"code":    code,
			"display": authcode.FormatDisplay(raw),
		})
	}
}

// ListCodesHandler lists invitation codes with pagination. Each code carries
// its derived status so the frontend never re-implements the lifecycle rules.
// GET /api/v1/admin/codes
func (h *Handlers) ListCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		codes, total, err := h.codeRepo.ListCodes(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list codes"})
			return
		}

		now := time.Now()
		items := make([]gin.H, 0, len(codes))
		for _, code := range codes {
			items = append(items, gin.H{"code": code, "status": code.Status(now)})
		}

		c.JSON(http.StatusOK, gin.H{
			"codes":    items,
			"total":    total,
			"page":     page,
			"per_page": perPage,
		})
	}
}

// GetCodeHandler returns one invitation code with its derived status.
// GET /api/v1/admin/codes/:id
func (h *Handlers) GetCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		code, err := h.codeRepo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch code"})
			return
		}
		if code == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Code not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"code":    code,
			"status":  code.Status(time.Now()),
			"display": authcode.FormatDisplay(code.Code),
		})
	}
}

// RevokeCodeHandler revokes an invitation code. Revocation is permanent;
// accounts already registered through the code are unaffected.
// POST /api/v1/admin/codes/:id/revoke
func (h *Handlers) RevokeCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		code, err := h.codeRepo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch code"})
			return
		}
		if code == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Code not found"})
			return
		}

		if err := h.codeRepo.Revoke(c.Request.Context(), code.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke code"})
			return
		}

		h.auditor.Record(c.Request.Context(), audit.Event{
			Action:       audit.ActionCodeRevoke,
			ActorID:      c.GetString(middleware.UserIDKey),
			ResourceType: "auth_code",
			ResourceID:   code.ID,
			IPAddress:    c.ClientIP(),
		})

		c.JSON(http.StatusOK, gin.H{"message": "Code revoked"})
	}
}

// ListCodeUsagesHandler lists the redemptions of an invitation code.
// GET /api/v1/admin/codes/:id/usages
func (h *Handlers) ListCodeUsagesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		code, err := h.codeRepo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch code"})
			return
		}
		if code == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Code not found"})
			return
		}

		usages, err := h.codeRepo.ListUsages(c.Request.Context(), code.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list usages"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"usages": usages})
	}
}
