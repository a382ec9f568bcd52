package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pulsecrm/syncd/internal/application/services"
	"github.com/pulsecrm/syncd/pkg/constants"
)

// RequireAuth is a middleware that validates device JWT tokens
func RequireAuth(authSvc *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(constants.HeaderAuthorization)
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				constants.ResponseError: "Unauthorized",
				constants.FieldMessage:  "No authorization token provided",
				"code":                  "UNAUTHORIZED",
				"data":                  nil,
			})
			c.Abort()
			return
		}

		// Extract token (format: "Bearer <token>")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				constants.ResponseError: "Unauthorized",
				constants.FieldMessage:  "Invalid authorization header format",
				"code":                  "UNAUTHORIZED",
				"data":                  nil,
			})
			c.Abort()
			return
		}

		tokenString := parts[1]

		claims, err := authSvc.ValidateSession(c.Request.Context(), tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				constants.ResponseError: "Unauthorized",
				constants.FieldMessage:  err.Error(),
				"code":                  "UNAUTHORIZED",
				"data":                  nil,
			})
			c.Abort()
			return
		}

		// Update last activity (fire and forget)
		authSvc.TouchDevice(claims.Device.ID)

		c.Set(constants.ContextKeyDevice, claims.Device)

		c.Next()
	}
}
