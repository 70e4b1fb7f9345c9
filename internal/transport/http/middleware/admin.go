// Package middleware file: internal/transport/http/middleware/admin.go
package middleware

import (
	"PluginLens/internal/service/admin_token"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenVerifier 校验管理令牌
type TokenVerifier interface {
	Verify(token string) (*admin_token.Claim, error)
}

// RequireAdmin 要求请求携带有效的 Bearer 管理令牌。verifier 为 nil 时放行。
func RequireAdmin(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "需要认证"})
			return
		}
		claims, err := verifier.Verify(tokenString)
		if err != nil {
			slog.Warn("管理令牌无效", "path", c.FullPath(), "client_ip", c.ClientIP(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "令牌无效或已过期"})
			return
		}
		c.Set("admin_subject", claims.Subject)
		c.Next()
	}
}
