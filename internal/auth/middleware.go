package auth

import (
	"net/http"
	"strings"
	"time"

	"resident-intake/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// RequireAccessToken verifies a staff access token and puts the identity on
// the request context, the Gin keys and the request logger.
// Role checks live in internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return requireAccessToken(m, time.Now)
}

func requireAccessToken(m *Manager, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c.GetHeader(authorizationHeader))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, now())
		if err != nil {
			// The reason stays in the log; callers only learn the token was refused.
			logger.FromGin(c).Info("access token rejected", "reason", err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.PropertyID, claims.Role)
		c.Request = c.Request.WithContext(ctx)
		logger.Enrich(c, nil,
			"user_id", claims.UserID,
			"property_id", claims.PropertyID,
			"role", claims.Role,
		)

		c.Set("user_id", claims.UserID)
		c.Set("property_id", claims.PropertyID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// bearerToken accepts the scheme case-insensitively, as RFC 6750 allows.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	return tok, tok != ""
}
