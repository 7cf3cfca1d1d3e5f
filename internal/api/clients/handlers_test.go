package clients

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var clientCols = []string{"id", "name", "description", "is_active", "created_by", "created_at", "updated_at"}
var keywordCols = []string{"id", "term", "category", "is_active", "created_by", "created_at", "updated_at"}

const clientQuery = `SELECT id, name, description, is_active, created_by, created_at, updated_at\s+FROM clients`

// asUser injects an authenticated identity the way AuthMiddleware would.
func asUser(id, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, id)
		c.Set(middleware.RoleKey, role)
		c.Set(middleware.UserKey, &models.User{ID: id, Username: "tester", Role: role, IsActive: true})
		c.Next()
	}
}

func newTestHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewHandlers(db), mock
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

func clientRow(id, name string, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(clientCols).AddRow(id, name, nil, active, "admin-1", now, now)
}

func TestCreateClient(t *testing.T) {
	h, mock := newTestHandlers(t)
	r := gin.New()
	r.POST("/clients", asUser("admin-1", models.RoleAdmin), h.CreateClientHandler())

	mock.ExpectExec(`INSERT INTO clients`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPost, "/clients", `{"name":"Springfield City Council"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Springfield City Council") {
		t.Errorf("response should echo the created client: %s", w.Body.String())
	}
}

func TestCreateClientBlankName(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := gin.New()
	r.POST("/clients", asUser("admin-1", models.RoleAdmin), h.CreateClientHandler())

	w := doJSON(r, http.MethodPost, "/clients", `{"name":"   "}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListClientsNonAdminCannotSeeInactive(t *testing.T) {
	h, mock := newTestHandlers(t)
	r := gin.New()
	r.GET("/clients", asUser("user-1", models.RoleUser), h.ListClientsHandler())

	// The WHERE is_active filter must stay on even with include_inactive=true.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM clients WHERE is_active = true`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(clientQuery + ` WHERE is_active = true`).
		WillReturnRows(clientRow("client-1", "Springfield", true))

	w := doJSON(r, http.MethodGet, "/clients?include_inactive=true", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetClientNotFound(t *testing.T) {
	h, mock := newTestHandlers(t)
	r := gin.New()
	r.GET("/clients/:id", h.GetClientHandler())

	mock.ExpectQuery(clientQuery).WillReturnRows(sqlmock.NewRows(clientCols))

	w := doJSON(r, http.MethodGet, "/clients/nope", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeleteClientDeactivates(t *testing.T) {
	h, mock := newTestHandlers(t)
	r := gin.New()
	r.DELETE("/clients/:id", asUser("admin-1", models.RoleAdmin), h.DeleteClientHandler())

	mock.ExpectQuery(clientQuery).WillReturnRows(clientRow("client-1", "Springfield", true))
	mock.ExpectExec(`UPDATE clients SET is_active = false`).
		WithArgs("client-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodDelete, "/clients/client-1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAddSourceRejectsBadURL(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := gin.New()
	r.POST("/clients/:id/sources", asUser("admin-1", models.RoleAdmin), h.AddSourceHandler())

	for _, bad := range []string{"not-a-url", "ftp://example.com/minutes", "javascript:alert(1)"} {
		w := doJSON(r, http.MethodPost, "/clients/client-1/sources", `{"url":"`+bad+`"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("url %q: expected 400, got %d", bad, w.Code)
		}
	}
}

func TestAddSource(t *testing.T) {
	h, mock := newTestHandlers(t)
	r := gin.New()
	r.POST("/clients/:id/sources", asUser("admin-1", models.RoleAdmin), h.AddSourceHandler())

	mock.ExpectQuery(clientQuery).WillReturnRows(clientRow("client-1", "Springfield", true))
	mock.ExpectExec(`INSERT INTO client_sources`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPost, "/clients/client-1/sources",
		`{"url":"https://springfield.gov/minutes","label":"Minutes page"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFavoriteAndList(t *testing.T) {
	h, mock := newTestHandlers(t)
	r := gin.New()
	r.POST("/clients/:id/favorite", asUser("user-1", models.RoleUser), h.FavoriteHandler())
	r.GET("/favorites", asUser("user-1", models.RoleUser), h.ListFavoritesHandler())

	mock.ExpectQuery(clientQuery).WillReturnRows(clientRow("client-1", "Springfield", true))
	mock.ExpectExec(`INSERT INTO favorites`).
		WithArgs("user-1", "client-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if w := doJSON(r, http.MethodPost, "/clients/client-1/favorite", ""); w.Code != http.StatusOK {
		t.Fatalf("favorite: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	now := time.Now()
	mock.ExpectQuery(`FROM favorites f\s+JOIN clients c`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(clientCols).
			AddRow("client-1", "Springfield", nil, true, "admin-1", now, now))

	w := doJSON(r, http.MethodGet, "/favorites", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Springfield") {
		t.Errorf("favorites listing should include the client: %s", w.Body.String())
	}
}

func TestCreateKeyword(t *testing.T) {
	h, mock := newTestHandlers(t)
	r := gin.New()
	r.POST("/keywords", asUser("admin-1", models.RoleAdmin), h.CreateKeywordHandler())

	mock.ExpectExec(`INSERT INTO keywords`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPost, "/keywords", `{"term":"zoning variance","category":"land use"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAssociateKeyword(t *testing.T) {
	h, mock := newTestHandlers(t)
	r := gin.New()
	r.POST("/clients/:id/keywords/:keywordID", asUser("admin-1", models.RoleAdmin), h.AssociateKeywordHandler())

	now := time.Now()
	mock.ExpectQuery(clientQuery).WillReturnRows(clientRow("client-1", "Springfield", true))
	mock.ExpectQuery(`FROM keywords`).
		WillReturnRows(sqlmock.NewRows(keywordCols).
			AddRow("kw-1", "zoning", nil, true, "admin-1", now, now))
	mock.ExpectExec(`INSERT INTO client_keywords`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPost, "/clients/client-1/keywords/kw-1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAssociateKeywordUnknownKeyword(t *testing.T) {
	h, mock := newTestHandlers(t)
	r := gin.New()
	r.POST("/clients/:id/keywords/:keywordID", asUser("admin-1", models.RoleAdmin), h.AssociateKeywordHandler())

	mock.ExpectQuery(clientQuery).WillReturnRows(clientRow("client-1", "Springfield", true))
	mock.ExpectQuery(`FROM keywords`).WillReturnRows(sqlmock.NewRows(keywordCols))

	w := doJSON(r, http.MethodPost, "/clients/client-1/keywords/nope", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeleteKeywordDeactivates(t *testing.T) {
	h, mock := newTestHandlers(t)
	r := gin.New()
	r.DELETE("/keywords/:id", asUser("admin-1", models.RoleAdmin), h.DeleteKeywordHandler())

	now := time.Now()
	mock.ExpectQuery(`FROM keywords`).
		WillReturnRows(sqlmock.NewRows(keywordCols).
			AddRow("kw-1", "zoning", nil, true, "admin-1", now, now))
	mock.ExpectExec(`UPDATE keywords SET is_active = false`).
		WithArgs("kw-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodDelete, "/keywords/kw-1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
