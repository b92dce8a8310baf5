package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.POST("/echo", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequestID(t *testing.T) {
	t.Run("generates an ID when missing", func(t *testing.T) {
		r := newRouter(RequestID())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", nil))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("keeps the incoming ID", func(t *testing.T) {
		r := newRouter(RequestID())
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/echo", nil)
		req.Header.Set("X-Request-ID", "client-id-1")
		r.ServeHTTP(w, req)
		assert.Equal(t, "client-id-1", w.Header().Get("X-Request-ID"))
	})
}

func TestCORS(t *testing.T) {
	cfg := CORSConfig{
		AllowOrigins: []string{"https://budget.example.com"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       time.Hour,
	}

	t.Run("sets headers for allowed origin", func(t *testing.T) {
		r := newRouter(CORS(cfg))
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/echo", nil)
		req.Header.Set("Origin", "https://budget.example.com")
		r.ServeHTTP(w, req)
		assert.Equal(t, "https://budget.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("omits headers for unknown origin", func(t *testing.T) {
		r := newRouter(CORS(cfg))
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/echo", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		r.ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight always gets 204", func(t *testing.T) {
		r := newRouter(CORS(cfg))
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/echo", nil)
		req.Header.Set("Origin", "https://budget.example.com")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestBodyLimit(t *testing.T) {
	r := newRouter(BodyLimit(16))

	t.Run("accepts small bodies", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("small")))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects oversized bodies", func(t *testing.T) {
		w := httptest.NewRecorder()
		body := strings.NewReader(strings.Repeat("x", 64))
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", body))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}
