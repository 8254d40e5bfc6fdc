package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskhub/internal/lifecycle"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	actorKey        = "actor"
)

var errUnauthenticated = errors.New("missing or invalid bearer token")

// requestID tags each request with an id, reusing the caller's when given.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger logs one line per API request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		logger.Info("request",
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("client_ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowOrigins = nil
		cfg.AllowCredentials = false
	}
	return cors.New(cfg)
}

// requireActor verifies the bearer token and stores the actor on the
// context. EventSource cannot send headers, so access_token in the query is
// accepted as well.
func (s *Server) requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			s.respondError(c, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		claims, err := s.signer.Parse(token)
		if err != nil {
			s.respondError(c, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		c.Set(actorKey, claims.Actor())
		c.Next()
	}
}

func actorFrom(c *gin.Context) lifecycle.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(lifecycle.Actor)
	return actor
}
