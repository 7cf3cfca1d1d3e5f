package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func requestIDRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})
	return r
}

func TestRequestID_GeneratedWhenAbsent(t *testing.T) {
	w := httptest.NewRecorder()
	requestIDRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	header := w.Header().Get(RequestIDHeader)
	if header == "" {
		t.Fatal("missing response header")
	}
	if _, err := uuid.Parse(header); err != nil {
		t.Errorf("header %q is not a UUID: %v", header, err)
	}
	if w.Body.String() != header {
		t.Errorf("context value %q != header %q", w.Body.String(), header)
	}
}

func TestRequestID_InboundValueReused(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id-42")
	requestIDRouter().ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "upstream-id-42" {
		t.Errorf("header = %q, want upstream value reused", got)
	}
}
