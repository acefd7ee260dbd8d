package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
	"github.com/accompli/iep-api/pkg/response"
)

// RequireRoles enforces role-based access control for routes.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// ParentReadOnly blocks mutating requests from parent accounts. Parents
// may view their student's records but never change them.
func ParentReadOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Role == models.RoleParent && c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "parent accounts are read-only"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser fetches the authenticated claims from the request context.
func CurrentUser(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
