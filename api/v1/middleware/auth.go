package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"go_sitegen/internal/auth"
	"go_sitegen/internal/config"
	"go_sitegen/internal/httpx"
)

// AdminSecretHeader carries the shared secret of batch operations
const AdminSecretHeader = "X-Admin-Secret"

// AuthRequired is a middleware that validates JWT token
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing authorization header"))
			c.Abort()
			return
		}

		tokenString, ok := auth.BearerToken(authHeader)
		if !ok {
			httpx.FailErr(c, httpx.ErrUnauthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		// Parse and validate token
		claims, err := auth.ParseToken(tokenString)
		if err != nil {
			// Determine error type
			if errors.Is(err, jwt.ErrTokenExpired) {
				httpx.FailErr(c, httpx.ErrTokenExpired("token expired"))
			} else {
				httpx.FailErr(c, httpx.ErrInvalidToken("invalid token"))
			}
			c.Abort()
			return
		}

		// Set user info in context
		c.Set("uid", claims.UID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// AdminSecret admits requests presenting the configured shared secret.
// With no secret configured every request is refused.
func AdminSecret(cfg config.AdminConfig) gin.HandlerFunc {
	configured := cfg.SecretHash
	if configured == "" {
		configured = cfg.Secret
	}
	return func(c *gin.Context) {
		presented := c.GetHeader(AdminSecretHeader)
		if presented == "" {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing admin secret"))
			c.Abort()
			return
		}
		if !auth.CompareSecret(configured, presented) {
			httpx.FailErr(c, httpx.ErrForbidden("invalid admin secret"))
			c.Abort()
			return
		}
		c.Next()
	}
}
