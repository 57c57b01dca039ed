package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"comunitarr/internal/models"
	"comunitarr/pkg/auth"
	"comunitarr/pkg/validator"
)

const identityKey = "identity"

var errUnknownNeighborhood = errors.New("token neighborhood is not served here")

func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header is required",
			})
			return
		}

		// "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
			})
			return
		}

		who, err := Authenticate(jwtManager, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			return
		}

		c.Set(identityKey, who)
		c.Next()
	}
}

// Authenticate validates a raw token and resolves the caller. The websocket
// endpoint uses it directly since browsers cannot set headers on upgrade.
func Authenticate(jwtManager *auth.JWTManager, token string) (auth.Identity, error) {
	claims, err := jwtManager.ValidateToken(token)
	if err != nil {
		return auth.Identity{}, err
	}
	who, err := claims.Identity()
	if err != nil {
		return auth.Identity{}, err
	}
	if !validator.IsKnownNeighborhood(who.Neighborhood) {
		return auth.Identity{}, errUnknownNeighborhood
	}
	role, ok := models.ParseRole(who.Role)
	if !ok {
		return auth.Identity{}, errors.New("unknown role")
	}
	who.Role = role.String()
	return who, nil
}

// CurrentIdentity returns the caller set by AuthMiddleware.
func CurrentIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	who, ok := v.(auth.Identity)
	return who, ok
}
