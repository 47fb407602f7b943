// internal/interfaces/http/middleware/auth.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-checkout/internal/config"
	"github.com/your-org/storefront-checkout/internal/pkg/auth"
)

// AuthMiddleware validates the storefront access token and keeps it for backend calls
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	jwtManager := auth.NewJWTManager(cfg)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		tokenString := auth.ExtractTokenFromHeader(authHeader)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set("user_login", claims.Login())
		c.Set("user_email", claims.Email)
		c.Set("token_claims", claims)

		// Backend calls made while serving this request carry the shopper's token.
		c.Request = c.Request.WithContext(auth.WithBearer(c.Request.Context(), tokenString))

		c.Next()
	}
}

// GetUserLoginFromContext extracts the shopper login from gin context
func GetUserLoginFromContext(c *gin.Context) (string, bool) {
	login, exists := c.Get("user_login")
	if !exists {
		return "", false
	}
	s, ok := login.(string)
	return s, ok && s != ""
}

// GetUserEmailFromContext extracts user email from gin context
func GetUserEmailFromContext(c *gin.Context) (string, bool) {
	email, exists := c.Get("user_email")
	if !exists {
		return "", false
	}
	s, ok := email.(string)
	return s, ok
}
