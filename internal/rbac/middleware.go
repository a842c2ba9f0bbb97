package rbac

import (
	"net/http"

	"resident-intake/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireProperty enforces property scoping: property_id must exist in context.
func RequireProperty() gin.HandlerFunc {
	return func(c *gin.Context) {
		pid, err := auth.PropertyID(c.Request.Context())
		if err != nil || pid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "property_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - super_admin bypasses all checks
// - integration is a hidden role, and will be denied unless explicitly allowed
// - property isolation is enforced via RequireProperty (use it in the chain)
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}

		if IsSuperAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
