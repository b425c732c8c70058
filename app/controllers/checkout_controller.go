package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

type checkoutRequest struct {
	CourseID      uint   `json:"courseId"`
	PricingPlanID string `json:"pricingPlanId"`
}

// HandleCheckout starts a Stripe checkout for one course or one pricing plan.
func HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusForbidden, "unauthenticated", "User must be authenticated.")
	}

	var body checkoutRequest
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid checkout request")
	}

	result, err := deps.Billing.CreateCheckoutSession(c.UserContext(), billing.CheckoutRequest{
		UserID:        userCtx.UserID,
		Email:         userCtx.Email,
		CourseID:      body.CourseID,
		PricingPlanID: body.PricingPlanID,
		CallbackURL:   checkoutCallbackURL(c),
	})
	switch {
	case err == nil:
		return c.JSON(result)
	case errors.Is(err, billing.ErrUnauthenticated):
		return jsonError(c, fiber.StatusForbidden, "unauthenticated", "User must be authenticated.")
	case errors.Is(err, billing.ErrInvalidCheckoutRequest), errors.Is(err, billing.ErrCourseNotFound):
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	default:
		log.Errorf("[Checkout] Could not initiate checkout for %s: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not initiate Stripe checkout session"})
	}
}

// HandleCheckoutResult is the page Stripe redirects back to.
func HandleCheckoutResult(c *fiber.Ctx) error {
	success := c.Query("purchaseResult") == "success"
	data := pageData(c, "Checkout")
	data["Success"] = success
	data["PurchaseSessionID"] = c.Query("ongoingPurchaseSessionId")
	if success {
		data["Message"] = "Purchase SUCCESSFUL, redirecting..."
	} else {
		data["Message"] = "Purchase CANCELED or FAILED, redirecting..."
	}
	return c.Render("checkout_result", data, "layouts/main")
}

// HandleFlashPurchaseCompleted sets a success flash and redirects home.
func HandleFlashPurchaseCompleted(c *fiber.Ctx) error {
	fm := fiber.Map{
		"type":    "success",
		"message": "Thank you for your purchase! Your course access is ready.",
	}
	return flash.WithSuccess(c, fm).Redirect("/", fiber.StatusSeeOther)
}

// HandleFlashPurchaseFailed sets an error flash and redirects home.
func HandleFlashPurchaseFailed(c *fiber.Ctx) error {
	msg := c.Query("msg", "The purchase was canceled or could not be completed.")
	if len(msg) > 300 {
		msg = msg[:300]
	}
	fm := fiber.Map{
		"type":    "error",
		"message": msg,
	}
	return flash.WithError(c, fm).Redirect("/", fiber.StatusSeeOther)
}
