package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ocpalps/parkmeter/internal/service"
)

const (
	AuthorizationHeaderKey  = "Authorization"
	AuthorizationTypeBearer = "Bearer"
	ServiceSubjectKey       = "serviceSubject"
)

// ServiceAuth requires a valid service token on the wire routes. With no
// secret configured every request passes.
func ServiceAuth(tokens *service.ServiceTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tokens.Enabled() {
			c.Next()
			return
		}

		fields := strings.Fields(c.GetHeader(AuthorizationHeaderKey))
		if len(fields) < 2 || !strings.EqualFold(fields[0], AuthorizationTypeBearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			return
		}

		subject, err := tokens.Validate(fields[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid service token", "details": err.Error()})
			return
		}
		c.Set(ServiceSubjectKey, subject)
		c.Next()
	}
}
