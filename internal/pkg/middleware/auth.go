package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/constants"
	"github.com/ManuelReschke/CourseFox/internal/pkg/identity"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// RequireAuth ensures a logged-in web session; redirects to /login if missing.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Redirect(constants.LoginRoute, fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAPIAuth authenticates API calls with a Firebase ID token from the
// Authorization header, with or without the Bearer prefix. Requests without
// a token fall back to the web session.
func RequireAPIAuth(verifier identity.Verifier, users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractIDToken(c)
		if token == "" {
			if usercontext.IsLoggedIn(c) {
				return c.Next()
			}
			return unauthenticated(c)
		}
		if verifier == nil {
			return unauthenticated(c)
		}

		id, err := verifier.VerifyIDToken(c.UserContext(), token)
		if err != nil {
			log.Warnf("[Auth] Rejected ID token: %v", err)
			return unauthenticated(c)
		}

		plan := models.PlanFree
		if users != nil {
			if user, err := users.GetByID(id.UID); err == nil && user.Plan != "" {
				plan = user.Plan
			}
		}
		usercontext.Set(c, usercontext.UserContext{
			UserID:     id.UID,
			Email:      id.Email,
			IsLoggedIn: true,
			Plan:       plan,
		})
		return c.Next()
	}
}

func unauthenticated(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error":   "unauthenticated",
		"message": "User must be authenticated.",
	})
}

func extractIDToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return auth
}
