package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/CourseFox/internal/pkg/constants"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
	"github.com/ManuelReschke/CourseFox/internal/pkg/utils"
)

func isLoggedIn(c *fiber.Ctx) bool {
	return usercontext.IsLoggedIn(c)
}

// pageData holds the values every layout render needs.
func pageData(c *fiber.Ctx, title string) fiber.Map {
	userCtx := usercontext.GetUserContext(c)
	data := fiber.Map{
		"Title":      title,
		"IsLoggedIn": userCtx.IsLoggedIn,
		"Email":      userCtx.Email,
		"Avatar":     utils.AvatarURL(userCtx.Email, 32),
		"Plan":       userCtx.Plan,
		"Flash":      flash.Get(c),
		"CSRF":       "",
	}
	if token, ok := c.Locals("csrf").(string); ok {
		data["CSRF"] = token
	}
	return data
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// checkoutCallbackURL is where Stripe sends the buyer back to.
func checkoutCallbackURL(c *fiber.Ctx) string {
	base := ""
	if deps != nil {
		base = strings.TrimRight(deps.BaseURL, "/")
	}
	if base == "" {
		base = c.BaseURL()
	}
	return base + constants.CheckoutResultRoute
}

// ClientIP returns the caller address, preferring proxy headers.
func ClientIP(c *fiber.Ctx) string {
	if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return c.IP()
}
