package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/audit"
	"github.com/civicscan/civicscan/internal/config"
	"github.com/civicscan/civicscan/internal/middleware"
	"github.com/civicscan/civicscan/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var codeCols = []string{"id", "code", "created_by", "expires_at", "max_uses", "current_uses", "is_active", "notes", "created_at"}
var userCols = []string{"id", "username", "email", "role", "is_active", "created_at", "updated_at"}

func newTestHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock, *storage.Manager) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	manager, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage manager: %v", err)
	}
	auditor, err := audit.NewRecorder(config.AuditConfig{})
	if err != nil {
		t.Fatalf("failed to create audit recorder: %v", err)
	}
	return NewHandlers(db, manager, auditor), mock, manager
}

func asAdmin(c *gin.Context) {
	c.Set(middleware.UserIDKey, "admin-1")
	c.Next()
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateCode(t *testing.T) {
	h, mock, _ := newTestHandlers(t)
	r := gin.New()
	r.POST("/codes", asAdmin, h.CreateCodeHandler())

	mock.ExpectExec(`INSERT INTO auth_codes`).WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPost, "/codes", `{"max_uses":5,"notes":"onboarding batch"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Display string `json:"display"`
		Code    struct {
			Code    string `json:"code"`
			MaxUses int    `json:"max_uses"`
		} `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Code.Code) != 12 {
		t.Errorf("expected a 12-character code, got %q", resp.Code.Code)
	}
	if resp.Code.MaxUses != 5 {
		t.Errorf("expected max_uses 5, got %d", resp.Code.MaxUses)
	}
	// Display form is the same code grouped for readability.
	if strings.ReplaceAll(resp.Display, "-", "") != resp.Code.Code {
		t.Errorf("display %q does not match code %q", resp.Display, resp.Code.Code)
	}
}

func TestCreateCodeDefaultsToSingleUse(t *testing.T) {
	h, mock, _ := newTestHandlers(t)
	r := gin.New()
	r.POST("/codes", asAdmin, h.CreateCodeHandler())

	mock.ExpectExec(`INSERT INTO auth_codes`).WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPost, "/codes", `{}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"max_uses":1`) {
		t.Errorf("expected single-use default: %s", w.Body.String())
	}
}

func TestCreateCodeRejectsPastExpiry(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	r := gin.New()
	r.POST("/codes", asAdmin, h.CreateCodeHandler())

	w := doJSON(r, http.MethodPost, "/codes", `{"expires_at":"2020-01-01T00:00:00Z"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListCodesCarriesDerivedStatus(t *testing.T) {
	h, mock, _ := newTestHandlers(t)
	r := gin.New()
	r.GET("/codes", h.ListCodesHandler())

	now := time.Now()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM auth_codes`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`FROM auth_codes`).
		WillReturnRows(sqlmock.NewRows(codeCols).
			AddRow("code-1", "AAAAAAAAAAAA", "admin-1", nil, 1, 0, true, nil, now).
			AddRow("code-2", "BBBBBBBBBBBB", "admin-1", nil, 1, 1, true, nil, now))

	w := doJSON(r, http.MethodGet, "/codes", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"status":"active"`) || !strings.Contains(body, `"status":"exhausted"`) {
		t.Errorf("expected derived statuses in the listing: %s", body)
	}
}

func TestRevokeCode(t *testing.T) {
	h, mock, _ := newTestHandlers(t)
	r := gin.New()
	r.POST("/codes/:id/revoke", asAdmin, h.RevokeCodeHandler())

	mock.ExpectQuery(`FROM auth_codes`).
		WillReturnRows(sqlmock.NewRows(codeCols).
			AddRow("code-1", "AAAAAAAAAAAA", "admin-1", nil, 1, 0, true, nil, time.Now()))
	mock.ExpectExec(`UPDATE auth_codes SET is_active = false`).
		WithArgs("code-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPost, "/codes/code-1/revoke", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRevokeUnknownCode(t *testing.T) {
	h, mock, _ := newTestHandlers(t)
	r := gin.New()
	r.POST("/codes/:id/revoke", asAdmin, h.RevokeCodeHandler())

	mock.ExpectQuery(`FROM auth_codes`).WillReturnRows(sqlmock.NewRows(codeCols))

	w := doJSON(r, http.MethodPost, "/codes/nope/revoke", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSetUserActive(t *testing.T) {
	h, mock, _ := newTestHandlers(t)
	r := gin.New()
	r.PUT("/users/:id/active", asAdmin, h.SetUserActiveHandler())

	now := time.Now()
	mock.ExpectQuery(`FROM users`).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("user-1", "alice", "alice@example.com", "user", true, now, now))
	mock.ExpectExec(`UPDATE users`).WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPut, "/users/user-1/active", `{"is_active":false}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"is_active":false`) {
		t.Errorf("user should come back deactivated: %s", w.Body.String())
	}
}

func TestAdminCannotDeactivateSelf(t *testing.T) {
	h, mock, _ := newTestHandlers(t)
	r := gin.New()
	r.PUT("/users/:id/active", asAdmin, h.SetUserActiveHandler())

	now := time.Now()
	mock.ExpectQuery(`FROM users`).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("admin-1", "admin", "admin@example.com", "admin", true, now, now))

	w := doJSON(r, http.MethodPut, "/users/admin-1/active", `{"is_active":false}`)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStorageStats(t *testing.T) {
	h, _, manager := newTestHandlers(t)
	r := gin.New()
	r.GET("/storage", h.StorageStatsHandler())

	dir, err := manager.EnsureDir("job-1", storage.CategoryRaw)
	if err != nil {
		t.Fatalf("failed to create job dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "minutes.pdf"), []byte("pdf"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	w := doJSON(r, http.MethodGet, "/storage", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Storage map[string]struct {
			Jobs  int `json:"jobs"`
			Files int `json:"files"`
		} `json:"storage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Storage["raw"].Files != 1 || resp.Storage["raw"].Jobs != 1 {
		t.Errorf("unexpected raw stats: %+v", resp.Storage["raw"])
	}
}

func TestCleanupJobStorage(t *testing.T) {
	h, _, manager := newTestHandlers(t)
	r := gin.New()
	r.DELETE("/storage/jobs/:id", h.CleanupJobStorageHandler())

	rawDir, err := manager.EnsureDir("job-1", storage.CategoryRaw)
	if err != nil {
		t.Fatalf("failed to create job dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(rawDir, "minutes.pdf"), []byte("pdf"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	artDir, err := manager.EnsureDir("job-1", storage.CategoryArtifacts)
	if err != nil {
		t.Fatalf("failed to create artifact dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(artDir, "results.zip"), []byte("zip"), 0o644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}

	w := doJSON(r, http.MethodDelete, "/storage/jobs/job-1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// Artifacts survive the default cleanup.
	if _, err := os.Stat(filepath.Join(artDir, "results.zip")); err != nil {
		t.Errorf("artifact should survive cleanup without include_artifacts: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rawDir, "minutes.pdf")); !os.IsNotExist(err) {
		t.Errorf("raw file should be gone, stat err: %v", err)
	}
}

func TestCleanupStorageRequiresPositiveAge(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	r := gin.New()
	r.POST("/storage/cleanup", h.CleanupStorageHandler())

	w := doJSON(r, http.MethodPost, "/storage/cleanup", `{"older_than_hours":0}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
