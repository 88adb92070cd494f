package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lumenfest/core/internal/pkg/ident"
	"github.com/lumenfest/core/internal/pkg/response"
)

// AdminAuth enforces the static admin bearer token. There are no user
// accounts; the token is deployment configuration.
func AdminAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" || !ident.ConstantTimeEquals(extractToken(c), adminToken) {
			response.Unauthorized(c)
			return
		}
		c.Next()
	}
}

// TokenValidator returns the check the socket gateway uses for its admin
// namespace, sharing the HTTP surface's credential.
func TokenValidator(adminToken string) func(string) bool {
	return func(token string) bool {
		return adminToken != "" && ident.ConstantTimeEquals(token, adminToken)
	}
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
