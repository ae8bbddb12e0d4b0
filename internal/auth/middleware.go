package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const operatorContextKey = "auth_operator"

// Middleware validates bearer tokens and stores the operator id in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.Next()
			return
		}
		authToken := s.extractToken(c)
		if authToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "status": "error", "error": "authorization required"})
			return
		}
		operator, err := s.ValidateToken(authToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "status": "error", "error": err.Error()})
			return
		}
		c.Set(operatorContextKey, operator)
		c.Next()
	}
}

// OperatorFromContext returns the token id captured by the middleware.
func OperatorFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(operatorContextKey)
	if !ok {
		return "", false
	}
	operator, ok := val.(string)
	return operator, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
