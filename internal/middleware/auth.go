// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, request IDs, metrics, and
// request logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → RateLimit → Auth → Handler
//
// Security headers run before auth so they appear on all responses including
// errors. Rate limiting runs before auth to block brute-force attempts before
// any database work. Auth populates the user identity; RequireAdmin reads
// from that context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/auth"
	"github.com/civicscan/civicscan/internal/config"
	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/internal/db/repositories"
)

// Context keys populated by AuthMiddleware.
const (
	UserKey   = "user"
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// AuthMiddleware validates the session JWT and loads the authenticated user.
//
// The token is read from the Authorization header (Bearer scheme) first, then
// from the session cookie. Browser clients rely on the cookie; API clients
// and the test suite use the header. A valid token for a deactivated or
// deleted user is rejected, so deactivation takes effect immediately rather
// than at token expiry.
func AuthMiddleware(cfg *config.Config, tokens *auth.TokenService, userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			if cookie, err := c.Cookie(cfg.Auth.CookieName); err == nil {
				token = cookie
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}
		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Account is deactivated",
			})
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Set(RoleKey, user.Role)

		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the authenticated user has the admin
// role. Must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user from the Gin context, or nil
// when no AuthMiddleware ran on this request.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
