package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comunitarr/internal/models"
)

// RequirePermission rejects callers whose role does not grant permission.
func RequirePermission(permission models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := currentRole(c)
		if !ok {
			return
		}

		if !role.HasPermission(permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "Insufficient permissions",
				"required":  permission,
				"user_role": role,
			})
			return
		}

		c.Next()
	}
}

// RequireRole rejects callers below minRole in the hierarchy.
func RequireRole(minRole models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := currentRole(c)
		if !ok {
			return
		}

		if !role.IsHigherOrEqual(minRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":         "Insufficient permissions",
				"required_role": minRole,
				"user_role":     role,
			})
			return
		}

		c.Next()
	}
}

func currentRole(c *gin.Context) (models.UserRole, bool) {
	who, ok := CurrentIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return "", false
	}

	role := models.UserRole(who.Role)
	if !role.IsValid() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Invalid role",
		})
		return "", false
	}
	return role, true
}
