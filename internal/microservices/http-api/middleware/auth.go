package middleware

import (
	"net/http"
	"strings"

	"meetrix/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID = "userID"
	ContextClaims = "claims"
	ContextRole   = "role"
	ContextEmail  = "email"
)

// TokenValidator is the slice of AuthService the middleware needs
type TokenValidator interface {
	ValidateToken(tokenString string) (*service.Claims, error)
}

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}

// BearerToken extracts <token> from "Authorization: Bearer <token>"; empty when absent or malformed
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2) // 0 is Bearer, 1 is token
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthMiddleware is a Gin middleware for JWT authentication of API requests
// It checks for the presence and validity of a JWT token in the Authorization header
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortJSON(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		tokenString := BearerToken(authHeader)
		if tokenString == "" {
			abortJSON(c, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := validator.ValidateToken(tokenString)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "invalid token")
			return
		}

		// Set user info in context for handlers to use
		c.Set(ContextClaims, claims)
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// RequireRole checks if the user has one of the given roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleInterface, exists := c.Get(ContextRole)
		if !exists {
			abortJSON(c, http.StatusForbidden, "role not found in token")
			return
		}

		userRole, ok := roleInterface.(string)
		if !ok {
			abortJSON(c, http.StatusForbidden, "invalid role format")
			return
		}

		for _, role := range roles {
			if userRole == role {
				c.Next()
				return
			}
		}

		abortJSON(c, http.StatusForbidden, "insufficient permissions")
	}
}

// RequireAdmin is a convenience function for requiring admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole("admin")
}
