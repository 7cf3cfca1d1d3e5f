package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/auth"
	"github.com/civicscan/civicscan/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-jwt-secret-that-is-32-chars!!"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.CookieName = "civicscan_token"
	cfg.Storage.BasePath = t.TempDir()
	cfg.Security.CORS.AllowedOrigins = []string{"https://app.civicscan.example"}
	return cfg
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := testConfig(t)
	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}

	router, bg, err := NewRouter(cfg, db, tokens)
	if err != nil {
		t.Fatalf("failed to build router: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bg.Shutdown(ctx)
	})
	return router
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReadyEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVersionEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); !strings.Contains(got, `"api_version":"v1"`) {
		t.Errorf("unexpected version body: %s", got)
	}
}

func TestNoDuplicateRoutes(t *testing.T) {
	router := newTestRouter(t)

	seen := make(map[string]bool)
	for _, route := range router.Routes() {
		key := route.Method + " " + route.Path
		if seen[key] {
			t.Errorf("route registered twice: %s", key)
		}
		seen[key] = true
	}
	if len(seen) == 0 {
		t.Fatal("router has no registered routes")
	}
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/api/v1/clients", "/api/v1/jobs", "/api/v1/favorites", "/api/v1/admin/codes"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without a session, got %d", path, w.Code)
		}
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.Header.Set("Origin", "https://app.civicscan.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.civicscan.example" {
		t.Errorf("expected the origin to be echoed, got %q", got)
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin should get no CORS headers, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.civicscan.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("preflight response should advertise allowed methods")
	}
}
