package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/response"
)

const (
	// ContextUserID is the key for the caller's uuid.UUID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for the caller's models.Role in gin context.
	ContextUserRole = "user_role"
)

// TokenValidator turns a bearer token into a caller identity.
type TokenValidator interface {
	ValidateIdentity(token string) (models.Identity, error)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// JWT returns a middleware that validates the bearer token and stores the
// caller identity in the context.
func JWT(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		token, ok := BearerToken(header)
		if !ok {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		id, err := v.ValidateIdentity(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		SetIdentity(c, id)
		c.Next()
	}
}

// SetIdentity stores id in the context.
func SetIdentity(c *gin.Context, id models.Identity) {
	c.Set(ContextUserID, id.UserID)
	c.Set(ContextUserRole, id.Role)
}

// CurrentIdentity returns the identity set by JWT. It panics when called on
// a route without the middleware.
func CurrentIdentity(c *gin.Context) models.Identity {
	return models.Identity{
		UserID: c.MustGet(ContextUserID).(uuid.UUID),
		Role:   c.MustGet(ContextUserRole).(models.Role),
	}
}
