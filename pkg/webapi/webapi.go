// Package webapi is the site's authenticated JSON surface, adapted from
// the teacher's pkg/probe/handlers.go CRUD style onto the site package's
// check/action operations.
package webapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/watchkeep/watchkeep/pkg/api/middleware"
	"github.com/watchkeep/watchkeep/pkg/auth"
	"github.com/watchkeep/watchkeep/pkg/site"
)

// Server bundles the site and auth collaborators the routes need.
type Server struct {
	Site  *site.Site
	Auth  *auth.Auth
	Admin string // admin username
	Hash  string // bcrypt password hash
}

// Router builds the gin engine with every route wired.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RecoveryMiddleware(), middleware.LoggingMiddleware(), middleware.CORSMiddleware())

	r.GET("/health", s.health)
	r.POST("/api/v1/auth/login", s.login)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(s.Auth))
	{
		api.GET("/status", s.getStatus)
		api.GET("/checks", s.listChecks)
		api.GET("/checks/:name", s.getCheck)
		api.POST("/checks/:name", s.addCheck)
		api.PUT("/checks/:name", s.updateCheck)
		api.DELETE("/checks/:name", s.deleteCheck)
		api.POST("/checks/:name/run", s.runCheck)
		api.POST("/actions/test", s.testActions)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username != s.Admin {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := s.Auth.CheckPassword(req.Password, s.Hash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, expiresAt, err := s.Auth.GenerateToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, auth.LoginResponse{Token: token, Username: req.Username, ExpiresAt: expiresAt})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Site.GetStatus())
}

func (s *Server) listChecks(c *gin.Context) {
	st := s.Site.GetStatus()
	c.JSON(http.StatusOK, st.Checks)
}

func (s *Server) getCheck(c *gin.Context) {
	name := c.Param("name")
	chk, ok := s.Site.Check(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "check not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":      chk.Name(),
		"type":      chk.Type(),
		"state":     chk.State(),
		"softFail":  chk.SoftFail(),
		"threshold": chk.Threshold(),
		"priority":  chk.Priority(),
		"depends":   chk.Depends(),
	})
}

// checkRequest is the wire shape for add/update; it reuses the site
// package's checkDoc field names via direct JSON tag alignment.
type checkRequest struct {
	Name       string         `json:"name"` // update only: rename the check to this name
	Type       string         `json:"type" binding:"required"`
	SubType    string         `json:"subtype"`
	Options    map[string]any `json:"options"`
	Trigger    string         `json:"trigger"`
	Threshold  int            `json:"threshold"`
	Retries    int            `json:"retries"`
	Priority   int            `json:"priority"`
	FailAction bool           `json:"failAction"`
	PassAction bool           `json:"passAction"`
	Publish    string         `json:"publish"`
	Actions    []string       `json:"actions"`
	Depends    []string       `json:"depends"`
	Checks     []string       `json:"checks"`
}

func (s *Server) addCheck(c *gin.Context) {
	name := c.Param("name")
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Site.AddCheck(name, site.CheckDocFromRequest(
		req.Type, req.SubType, req.Options, req.Trigger, req.Threshold, req.Retries,
		req.Priority, req.FailAction, req.PassAction, req.Publish, req.Actions, req.Depends, req.Checks,
	)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}

func (s *Server) updateCheck(c *gin.Context) {
	name := c.Param("name")
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	newName := req.Name
	if newName == "" {
		newName = name
	}
	if err := s.Site.UpdateCheck(name, newName, site.CheckDocFromRequest(
		req.Type, req.SubType, req.Options, req.Trigger, req.Threshold, req.Retries,
		req.Priority, req.FailAction, req.PassAction, req.Publish, req.Actions, req.Depends, req.Checks,
	)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": newName})
}

func (s *Server) deleteCheck(c *gin.Context) {
	name := c.Param("name")
	if err := s.Site.DeleteCheck(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) runCheck(c *gin.Context) {
	name := c.Param("name")
	st, err := s.Site.RunCheck(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) testActions(c *gin.Context) {
	var req struct {
		Actions []string `json:"actions" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results := s.Site.TestActions(c.Request.Context(), req.Actions)
	out := map[string]string{}
	for name, err := range results {
		if err != nil {
			out[name] = err.Error()
		} else {
			out[name] = "ok"
		}
	}
	c.JSON(http.StatusOK, out)
}
