// Package middleware provides HTTP middleware components for the application.
// It includes authentication and authorization for the fiber routes.
package middleware

import (
	"strings"

	"promos/internal/models"
	"promos/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Protected validates the bearer token and stores its claims in the request
// context under "claims" and "userID".
func Protected(secret string, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return utils.Unauthorized(c, "missing authorization header")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return utils.Unauthorized(c, "invalid authorization format")
		}

		claims, err := utils.ParseToken(secret, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			log.WithError(err).WithField("path", c.Path()).Debug("token rejected")
			return utils.Unauthorized(c, "invalid token")
		}

		c.Locals("claims", claims)
		c.Locals("userID", claims.UserID)
		return c.Next()
	}
}

// HasPermission returns a middleware that checks for a specific permission.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*models.UserClaims)
		if !ok || claims == nil {
			return utils.Unauthorized(c, "Unauthorized")
		}
		if !claims.HasPermission(permission) {
			return utils.Forbidden(c, "Insufficient permissions")
		}
		return c.Next()
	}
}

// AdminOnly verifies that the request has admin claims.
func AdminOnly(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*models.UserClaims)
	if !ok || claims == nil {
		return utils.Unauthorized(c, "Invalid claims")
	}
	if claims.Role != models.RoleAdmin {
		return utils.Forbidden(c, "Insufficient permissions")
	}
	return c.Next()
}
