package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/app/controllers"
	"github.com/ManuelReschke/CourseFox/internal/pkg/constants"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// API routes live in ApiRouter (internal/pkg/router/api_router.go)

	// Stripe webhooks (no CSRF, signature-verified in the billing service)
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)

	// Checkout result flash helpers
	app.Get("/flash/purchase-completed", controllers.HandleFlashPurchaseCompleted)
	app.Get("/flash/purchase-failed", controllers.HandleFlashPurchaseFailed)
}
