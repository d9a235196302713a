package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/timmy/councilgen/internal/config"
	"github.com/timmy/councilgen/internal/logger"
)

func newEngine(cors config.CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger("/health"), CORS(cors))
	r.GET("/api/v1/generation/status", func(c *gin.Context) {
		c.String(http.StatusOK, logger.GetRequestID(c.Request.Context()))
	})
	return r
}

func TestCORSAllowList(t *testing.T) {
	r := newEngine(config.CORSConfig{AllowedOrigins: []string{"https://dashboard.test"}})

	testCases := []struct {
		name   string
		method string
		origin string
		code   int
		allow  string
	}{
		{"listed origin", http.MethodGet, "https://DASHBOARD.test", http.StatusOK, "https://DASHBOARD.test"},
		{"unlisted origin", http.MethodGet, "https://evil.test", http.StatusOK, ""},
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://dashboard.test", http.StatusNoContent, "https://dashboard.test"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/generation/status", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.allow, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestLoggerPropagatesRequestID(t *testing.T) {
	r := newEngine(config.CORSConfig{AllowAllOrigins: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/generation/status", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/generation/status", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestIsOriginAllowed(t *testing.T) {
	assert.True(t, IsOriginAllowed("https://a.test", config.CORSConfig{AllowAllOrigins: true}))
	assert.True(t, IsOriginAllowed("https://a.test", config.CORSConfig{AllowedOrigins: []string{"*"}}))
	assert.False(t, IsOriginAllowed("https://a.test", config.CORSConfig{}))
}
