package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/pkg/utils"
)

type roleChecker interface {
	HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)
}

// AuthRequired validates the bearer access token and stores the caller's id
// and email in the request locals.
func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		return authenticate(c, parts[1], secret)
	}
}

func authenticate(c *fiber.Ctx, tokenString, secret string) error {
	claims, err := utils.ValidateToken(tokenString, secret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	c.Locals("user_id", claims.UserID())
	c.Locals("email", claims.Email)

	return c.Next()
}

// RequireRole admits callers holding the role in user_roles. It must run
// after AuthRequired.
func RequireRole(roles roleChecker, role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userIDStr, _ := c.Locals("user_id").(string)
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		ok, err := roles.HasRole(c.Context(), userID, role)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to check role"})
		}
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		}

		return c.Next()
	}
}
