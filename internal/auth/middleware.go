package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const SubjectKey = "authSubject"

// JWTMiddleware requires a valid bearer token when the service is enabled.
func JWTMiddleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil || !svc.Enabled() {
			c.Next()
			return
		}
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		claims, err := svc.Parse(strings.TrimSpace(authz[7:]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}
