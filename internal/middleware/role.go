package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return allowRoles(func(r models.Role) bool {
		_, ok := allowed[r]
		return ok
	})
}

// RequireOrganizer allows roles that may create, edit and delete events.
func RequireOrganizer() gin.HandlerFunc {
	return allowRoles(models.Role.CanOrganize)
}

func allowRoles(allow func(models.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(models.Role)
		if !allow(role) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
