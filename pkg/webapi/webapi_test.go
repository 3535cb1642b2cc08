package webapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeep/watchkeep/pkg/auth"
	"github.com/watchkeep/watchkeep/pkg/site"
)

const testConfig = `{
  "checks": {
    "root-disk": {
      "type": "disk",
      "options": {"path": "/", "maxpercent": 90},
      "trigger": "5 min",
      "threshold": 1
    }
  }
}`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	configFile := filepath.Join(dir, "watchkeep.json")
	require.NoError(t, os.WriteFile(configFile, []byte(testConfig), 0o600))

	s := site.New(configFile)
	require.NoError(t, s.LoadConfig())

	a, err := auth.New([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	hash, err := a.HashPassword("hunter2")
	require.NoError(t, err)

	return &Server{Site: s, Auth: a, Admin: "admin", Hash: hash}, configFile
}

func TestLoginSuccessAndFailure(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	badBody, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(badBody))
	req2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestStatusRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusAndCheckLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	token, _, err := srv.Auth.GenerateToken("admin")
	require.NoError(t, err)
	authHeader := "Bearer " + token

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", authHeader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "root-disk")

	addBody, _ := json.Marshal(map[string]any{
		"type":      "disk",
		"options":   map[string]any{"path": "/tmp", "maxpercent": 80},
		"trigger":   "10 min",
		"threshold": 1,
	})
	addReq := httptest.NewRequest(http.MethodPost, "/api/v1/checks/tmp-disk", bytes.NewReader(addBody))
	addReq.Header.Set("Authorization", authHeader)
	addReq.Header.Set("Content-Type", "application/json")
	addW := httptest.NewRecorder()
	router.ServeHTTP(addW, addReq)
	assert.Equal(t, http.StatusCreated, addW.Code)

	delReq := httptest.NewRequest(http.MethodDelete, "/api/v1/checks/tmp-disk", nil)
	delReq.Header.Set("Authorization", authHeader)
	delW := httptest.NewRecorder()
	router.ServeHTTP(delW, delReq)
	assert.Equal(t, http.StatusNoContent, delW.Code)
}
