package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fitsphere/chat-service/internal/auth"
	"github.com/fitsphere/chat-service/internal/logger"
)

const principalKey = "principal"

var log = logger.New("api")

// Authenticator verifies a bearer token
type Authenticator interface {
	Authenticate(token string) (auth.Principal, error)
}

// AuthMiddleware validates JWT tokens and stores the caller's principal
func AuthMiddleware(tokens Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		// Check if Authorization header exists and has Bearer format
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		principal, err := tokens.Authenticate(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// Authenticated adapts a handler that needs the caller's identity. Requests
// that did not pass AuthMiddleware are rejected.
func Authenticated(h func(*gin.Context, auth.Principal)) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get(principalKey)
		principal, valid := value.(auth.Principal)
		if !ok || !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		h(c, principal)
	}
}

// RequestLogger logs every request through logrus
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Info("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
