// server/internal/api/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"blood-bank-api-server/internal/auth"

	"github.com/gin-gonic/gin"
)

// Context keys set by Authenticate.
const (
	ContextUserEmail  = "user_email"
	ContextUserRole   = "user_role"
	ContextHospitalID = "user_hospital_id"
)

// Authenticate validates the bearer access token and stores the caller's
// email, role and hospital in the request context.
func Authenticate(tokens *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			return
		}

		claims, err := tokens.Parse(tokenString, auth.TokenTypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextHospitalID, claims.HospitalID)

		c.Next()
	}
}

// Authorize only lets through callers whose role is in allowedRoles.
// It must run after Authenticate.
func Authorize(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoleInterface, exists := c.Get(ContextUserRole)
		if !exists {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "User role not found in context"})
			return
		}

		userRole, ok := userRoleInterface.(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "User role has an invalid type"})
			return
		}

		for _, role := range allowedRoles {
			if role == userRole {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
	}
}

// RequireHospital rejects callers whose credential carries no hospital.
func RequireHospital() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextHospitalID) == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is not linked to a hospital"})
			return
		}
		c.Next()
	}
}
