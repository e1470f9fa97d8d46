package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func serve(r *gin.Engine, method, path, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(PreviewCORSConfig()))
	router.GET("/static/libs/p5.min.js", func(c *gin.Context) {
		c.String(http.StatusOK, "p5")
	})

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"sandboxed frame", http.MethodGet, "null", http.StatusOK, "*"},
		{"host page", http.MethodGet, "http://localhost:8000", http.StatusOK, "*"},
		{"preflight", http.MethodOptions, "null", http.StatusNoContent, "*"},
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, "/static/libs/p5.min.js", tt.origin)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORSExposesTraceHeaders(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(PreviewCORSConfig()))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodGet, "/health", "http://localhost:8000")
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Trace-Id")
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2, Exempt: []string{"/static/"}}))
	router.GET("/render", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/static/lib.js", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/render", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/render", "").Code)
	w := serve(router, http.MethodGet, "/render", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/static/lib.js", "").Code)
	}
}
