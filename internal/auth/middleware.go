package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scribeit/internal/backend"
	"scribeit/internal/logger"
	"scribeit/internal/models"
)

const sessionContextKey = "auth_session"

// Middleware requires a live session and stores it in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := s.extractSessionID(c)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		sess, err := s.Resolve(c.Request.Context(), id)
		if err != nil {
			if !errors.Is(err, ErrInvalidSession) && !errors.Is(err, ErrSessionExpired) {
				logger.Error(c.Request.Context(), "resolve session failed", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// OptionalMiddleware attaches the session when one is presented and valid,
// and lets the request through either way.
func (s *Service) OptionalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := s.extractSessionID(c); id != "" {
			if sess, err := s.Resolve(c.Request.Context(), id); err == nil {
				c.Set(sessionContextKey, sess)
			}
		}
		c.Next()
	}
}

// SessionFromContext retrieves the session captured by the middleware.
func SessionFromContext(c *gin.Context) (*models.WebSession, bool) {
	val, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := val.(*models.WebSession)
	return sess, ok && sess != nil
}

// CredentialFromContext returns the backend credential of the session, or
// the zero credential when there is none.
func CredentialFromContext(c *gin.Context) backend.Credential {
	sess, ok := SessionFromContext(c)
	if !ok {
		return backend.Credential{}
	}
	return backend.Credential{AccessToken: sess.AccessToken}
}

func (s *Service) extractSessionID(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if id, err := c.Cookie(s.cookieName); err == nil && id != "" {
		return id
	}
	return ""
}
