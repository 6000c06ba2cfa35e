package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/pkg/models"
)

// TokenValidator is implemented by services.AuthService.
type TokenValidator interface {
	Enabled() bool
	ValidateToken(tokenString string) (*models.AdminClaims, error)
}

// AdminAuth guards the admin routes with a bearer JWT. When no signing
// secret is configured the routes are left open.
func AdminAuth(authService TokenValidator, logger *logrus.Logger) gin.HandlerFunc {
	if !authService.Enabled() {
		logger.Warn("Admin authentication disabled: auth.jwt_secret is not set")
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		// Extract token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "MISSING_AUTHORIZATION", "Authorization header is required", nil)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abortWithError(c, http.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'", nil)
			return
		}

		claims, err := authService.ValidateToken(tokenParts[1])
		if err != nil {
			logger.WithError(err).WithField("client_ip", c.ClientIP()).Warn("Invalid admin token")
			abortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token", nil)
			return
		}

		c.Set("admin_subject", claims.Subject)
		c.Set("token_id", claims.ID)
		c.Next()
	}
}
