package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeep/watchkeep/pkg/auth"
)

func newMockAuth(t *testing.T) *auth.Auth {
	t.Helper()
	a, err := auth.New([]byte("test-secret-key-for-testing"), 24*time.Hour)
	require.NoError(t, err)
	return a
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockAuth := newMockAuth(t)

	validToken, _, err := mockAuth.GenerateToken("admin")
	require.NoError(t, err)

	tests := []struct {
		name         string
		authHeader   string
		queryToken   string
		expectedCode int
	}{
		{name: "missing token", expectedCode: http.StatusUnauthorized},
		{name: "bearer token present", authHeader: "Bearer " + validToken, expectedCode: http.StatusOK},
		{name: "query token present", queryToken: validToken, expectedCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(AuthMiddleware(mockAuth))
			r.GET("/protected", func(c *gin.Context) {
				username, _ := c.Get("username")
				c.JSON(http.StatusOK, gin.H{"username": username})
			})

			req, err := http.NewRequest("GET", "/protected", nil)
			require.NoError(t, err)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.queryToken != "" {
				req.URL.RawQuery = "token=" + tt.queryToken
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), "error")
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name          string
		authHeader    string
		queryToken    string
		expectedToken string
	}{
		{name: "bearer token in header", authHeader: "Bearer test-token", expectedToken: "test-token"},
		{name: "query parameter token", queryToken: "query-token", expectedToken: "query-token"},
		{name: "invalid auth header", authHeader: "Invalid format", expectedToken: ""},
		{name: "no token provided", expectedToken: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"token": extractToken(c)})
			})

			req, err := http.NewRequest("GET", "/test", nil)
			require.NoError(t, err)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.queryToken != "" {
				req.URL.RawQuery = "token=" + tt.queryToken
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedToken)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORSMiddleware())
	r.GET("/test", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "test"}) })
	r.OPTIONS("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name         string
		method       string
		expectedCode int
	}{
		{name: "GET request with CORS headers", method: "GET", expectedCode: http.StatusOK},
		{name: "OPTIONS preflight request", method: "OPTIONS", expectedCode: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, "/test", nil)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/test", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "logged"}) })

	req, err := http.NewRequest("GET", "/test", nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryMiddleware())
	r.GET("/test", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "recovered"}) })

	req, err := http.NewRequest("GET", "/test", nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
