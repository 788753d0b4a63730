package api

import (
	"net/http"
	"strings"

	"mediaforge/config"

	"github.com/gin-gonic/gin"
)

// ownerKey is the gin context key holding the caller's user identity.
const ownerKey = "owner"

func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.AuthEnable {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header format"})
			return
		}

		if parts[1] != cfg.AuthKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Next()
	}
}

// UserIdentity requires the X-User-ID header. Authentication itself is
// an external collaborator's job; this header is the narrow interface
// through which it hands us the validated identity.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetHeader("X-User-ID")
		if user == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header required"})
			return
		}
		c.Set(ownerKey, user)
		c.Next()
	}
}
