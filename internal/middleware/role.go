package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Leela143-143/MUN/internal/models"
	"github.com/Leela143-143/MUN/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles. The role
// comes from the validated token; role-sensitive handlers additionally
// re-check the stored role.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "No token provided")
			c.Abort()
			return
		}
		role, _ := roleVal.(models.Role)
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "Insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
