// Package auth - jwt.go handles session token creation, signing, and
// verification. The secret lives in an explicitly constructed TokenService
// built from configuration at startup; nothing here reads the environment
// lazily or mutates shared state.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/civicscan/civicscan/internal/config"
)

// Claims represents the JWT claims structure
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and validates session tokens with a fixed HS256 secret.
// Construct one at startup with NewTokenService and inject it into whatever
// needs to mint or check tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService builds a TokenService from auth configuration.
//
// In production a missing secret is a hard startup error. In dev mode
// (DEV_MODE=true or GIN_MODE=debug) a random secret is generated instead, so
// local servers run without setup at the cost of sessions not surviving a
// restart.
func NewTokenService(cfg config.AuthConfig) (*TokenService, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		if !isDevMode() {
			return nil, errors.New("JWT secret is required in production; set CSC_JWT_SECRET " +
				"(generate one with: openssl rand -hex 32)")
		}
		secret = generateRandomSecret()
		slog.Warn("CSC_JWT_SECRET not set; using an auto-generated secret for development")
		slog.Warn("sessions will not persist across restarts; set CSC_JWT_SECRET for persistent sessions")
	}
	if len(secret) < 32 {
		slog.Warn("JWT secret is shorter than the recommended 32 characters")
	}

	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// isDevMode checks if we're in development mode
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")

	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less secure but functional secret
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// Issue creates a signed token for an authenticated user.
func (s *TokenService) Issue(userID, username, role string) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "civicscan",
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Validate parses and verifies a token, returning its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}
