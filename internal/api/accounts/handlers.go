// Package accounts implements the public account endpoints: invite-gated
// registration, login and logout, the current-user lookup, and the two-step
// password reset flow.
package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/audit"
	"github.com/civicscan/civicscan/internal/auth"
	"github.com/civicscan/civicscan/internal/authcode"
	"github.com/civicscan/civicscan/internal/config"
	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/internal/db/repositories"
	"github.com/civicscan/civicscan/internal/middleware"
	"github.com/civicscan/civicscan/internal/notify"
)

// Handlers serves the account endpoints.
type Handlers struct {
	cfg      *config.Config
	tokens   *auth.TokenService
	userRepo *repositories.UserRepository
	codeRepo *repositories.AuthCodeRepository
	mailer   *notify.Mailer
	auditor  *audit.Recorder
}

// NewHandlers creates the account handlers.
func NewHandlers(cfg *config.Config, db *sql.DB, tokens *auth.TokenService, mailer *notify.Mailer, auditor *audit.Recorder) *Handlers {
	return &Handlers{
		cfg:      cfg,
		tokens:   tokens,
		userRepo: repositories.NewUserRepository(db),
		codeRepo: repositories.NewAuthCodeRepository(db),
		mailer:   mailer,
		auditor:  auditor,
	}
}

type registerRequest struct {
	Code     string `json:"code" binding:"required"`
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterHandler creates an account gated by an invitation code.
// POST /api/v1/auth/register
func (h *Handlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		req.Username = strings.TrimSpace(req.Username)
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))

		if err := auth.CheckPasswordPolicy(req.Password); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		code, err := h.codeRepo.GetByCode(c.Request.Context(), req.Code)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate invitation code"})
			return
		}
		if code == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invitation code"})
			return
		}
		// Revoked, expired, and exhausted all get the same response as an
		// unknown code. The distinct statuses are admin-facing; a registrant
		// only learns that the code does not work.
		if code.Status(time.Now()) != models.CodeStatusActive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invitation code"})
			return
		}

		if existing, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check username"})
			return
		} else if existing != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Username is already taken"})
			return
		}
		if existing, err := h.userRepo.GetUserByEmail(c.Request.Context(), req.Email); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check email"})
			return
		} else if existing != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Email is already registered"})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		user := &models.User{
			Username: req.Username,
			Email:    req.Email,
			Role:     models.RoleUser,
		}
		// The code's remaining uses are decremented in the same transaction
		// that creates the account, so two racing registrations cannot both
		// ride the last use.
		if err := h.codeRepo.ConsumeWithRegistration(c.Request.Context(), code.ID, user, hash); err != nil {
			if errors.Is(err, authcode.ErrExhaustedCode) {
				// Lost the race for the last use; same generic response.
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invitation code"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		h.auditor.Record(c.Request.Context(), audit.Event{
			Action:       audit.ActionUserRegister,
			ActorID:      user.ID,
			ResourceType: "auth_code",
			ResourceID:   code.ID,
			IPAddress:    c.ClientIP(),
		})

		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler verifies credentials and issues a session token, both in the
// response body and as an HTTP-only cookie.
// POST /api/v1/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		// All credential failures return the same message so the endpoint
		// does not reveal which usernames exist.
		user, err := h.userRepo.GetUserByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is deactivated"})
			return
		}

		cred, err := h.userRepo.GetCredential(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}
		if cred == nil || !auth.VerifyPassword(cred.PasswordHash, req.Password) {
			h.auditor.Record(c.Request.Context(), audit.Event{
				Action:    audit.ActionUserLoginFailed,
				IPAddress: c.ClientIP(),
				Metadata:  map[string]any{"username": req.Username},
			})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}

		token, err := h.tokens.Issue(user.ID, user.Username, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		c.SetCookie(
			h.cfg.Auth.CookieName,
			token,
			int(h.cfg.Auth.TokenTTL.Seconds()),
			"/",
			"",
			h.cfg.Auth.CookieSecure,
			true, // HTTP-only; the frontend never reads the token from JS
		)

		h.auditor.Record(c.Request.Context(), audit.Event{
			Action:    audit.ActionUserLogin,
			ActorID:   user.ID,
			IPAddress: c.ClientIP(),
		})

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_in": int(h.cfg.Auth.TokenTTL.Seconds()),
			"user":       user,
		})
	}
}

// LogoutHandler clears the session cookie. The JWT itself stays valid until
// expiry; logout is a client-side operation.
// POST /api/v1/auth/logout
func (h *Handlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetCookie(h.cfg.Auth.CookieName, "", -1, "/", "", h.cfg.Auth.CookieSecure, true)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// MeHandler returns the authenticated user.
// GET /api/v1/auth/me
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

type resetRequestRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestPasswordResetHandler starts a password reset. The response is the
// same whether or not the email matches an account, so the endpoint cannot be
// used to enumerate registered addresses.
// POST /api/v1/auth/password-reset/request
func (h *Handlers) RequestPasswordResetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resetRequestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		resp := gin.H{"message": "If that email is registered, a reset link has been sent"}

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
		if err != nil || user == nil || !user.IsActive {
			c.JSON(http.StatusOK, resp)
			return
		}

		raw, hash, err := auth.GenerateResetToken()
		if err != nil {
			c.JSON(http.StatusOK, resp)
			return
		}

		ttl := h.cfg.Auth.ResetTokenTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		expiresAt := time.Now().Add(ttl)
		token := &models.PasswordResetToken{
			UserID:    user.ID,
			TokenHash: hash,
			ExpiresAt: expiresAt,
		}
		if err := h.userRepo.CreateResetToken(c.Request.Context(), token); err != nil {
			c.JSON(http.StatusOK, resp)
			return
		}

		resetURL := fmt.Sprintf("%s/reset-password?token=%s", h.cfg.Server.BaseURL, raw)
		_ = h.mailer.SendPasswordReset(user.Email, user.Username, resetURL, expiresAt)

		c.JSON(http.StatusOK, resp)
	}
}

type resetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ConfirmPasswordResetHandler redeems a reset token and sets a new password.
// POST /api/v1/auth/password-reset/confirm
func (h *Handlers) ConfirmPasswordResetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resetConfirmRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		if err := auth.CheckPasswordPolicy(req.NewPassword); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token, err := h.userRepo.GetResetTokenByHash(c.Request.Context(), auth.HashResetToken(req.Token))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
			return
		}
		if token == nil || !token.IsUsable(time.Now()) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token"})
			return
		}

		// Mark used first; the used_at guard makes redemption single-use even
		// when two requests race on the same token.
		changed, err := h.userRepo.MarkResetTokenUsed(c.Request.Context(), token.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
			return
		}
		if !changed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token"})
			return
		}

		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
			return
		}
		if err := h.userRepo.RotatePassword(c.Request.Context(), token.UserID, hash); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
			return
		}

		h.auditor.Record(c.Request.Context(), audit.Event{
			Action:    audit.ActionPasswordReset,
			ActorID:   token.UserID,
			IPAddress: c.ClientIP(),
		})

		c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
	}
}
