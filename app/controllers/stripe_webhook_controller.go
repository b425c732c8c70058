package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleStripeWebhook verifies and processes a Stripe event. The body must be
// the raw request bytes for the signature check.
func HandleStripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	if _, err := deps.Billing.HandleWebhook(c.UserContext(), payload, c.Get("Stripe-Signature")); err != nil {
		log.Warnf("[StripeWebhook] %v", err)
		return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: " + err.Error())
	}
	return c.JSON(fiber.Map{"received": true})
}
