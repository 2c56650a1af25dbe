package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"huddle/internal/core/services"
)

// IdentityKey is the gin context key the optional auth middleware sets when a
// request carries a valid token.
const IdentityKey = "identity"

// OptionalAuth attaches a verified identity to the request context when a
// token is present and valid. Absent or invalid tokens pass through as
// anonymous; signaling never requires authentication.
func OptionalAuth(auth services.AuthService, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			logger.Debugw("ignoring invalid token", "error", err)
			c.Next()
			return
		}

		c.Set(IdentityKey, claims.Identity())
		c.Next()
	}
}

// extractToken prefers the Authorization header; the token query parameter
// exists for browser WebSocket clients, which cannot set headers.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
