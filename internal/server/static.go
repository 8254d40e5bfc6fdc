package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountStatic serves the built front end. Unknown non-API paths fall back to
// index.html so client-side routes survive a reload.
func (s *Server) mountStatic() {
	index := s.indexFile()
	s.engine.NoRoute(func(c *gin.Context) {
		if index == "" || strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.File(index)
	})
}

// indexFile registers the static asset routes and returns the path of
// index.html, or "" when there is no front end to serve.
func (s *Server) indexFile() string {
	if s.staticDir == "" {
		s.logger.Warn("static directory not configured; API only mode")
		return ""
	}
	if info, err := os.Stat(s.staticDir); err != nil || !info.IsDir() {
		s.logger.Warn("static directory missing", "path", s.staticDir, "error", err)
		return ""
	}

	for _, name := range []string{"assets", "favicon.ico"} {
		p := filepath.Join(s.staticDir, name)
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.IsDir() {
			s.engine.StaticFS("/"+name, gin.Dir(p, false))
		} else {
			s.engine.StaticFile("/"+name, p)
		}
	}

	index := filepath.Join(s.staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		s.logger.Warn("index.html not found", "path", index, "error", err)
		return ""
	}
	s.engine.GET("/", func(c *gin.Context) { c.File(index) })
	return index
}
