package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/session"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// purchaseWaitTimeout bounds the long poll of HandleWaitPurchase.
var purchaseWaitTimeout = 25 * time.Second

// HandleGetPurchase returns one of the caller's purchase sessions.
func HandleGetPurchase(c *fiber.Ctx) error {
	ps, err := deps.Billing.GetPurchaseSession(c.UserContext(), c.Params("id"), usercontext.GetUserID(c))
	if err != nil {
		return purchaseError(c, err)
	}
	return c.JSON(ps)
}

// HandleWaitPurchase long-polls until the purchase session is no longer
// ongoing. It answers 200 once it completed or expired and 202 on timeout.
func HandleWaitPurchase(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), purchaseWaitTimeout)
	defer cancel()

	ps, err := deps.Billing.WaitForPurchaseCompleted(ctx, c.Params("id"), usercontext.GetUserID(c))
	if ps != nil && ps.IsOngoing() {
		return c.Status(fiber.StatusAccepted).JSON(ps)
	}
	if err != nil {
		return purchaseError(c, err)
	}

	if ps.IsCompleted() {
		refreshSessionPlan(c)
	}
	return c.JSON(ps)
}

// refreshSessionPlan copies a plan granted by a subscription into the web session.
func refreshSessionPlan(c *fiber.Ctx) {
	userCtx := usercontext.GetUserContext(c)
	user, err := deps.Users.GetByID(userCtx.UserID)
	if err != nil || user.Plan == "" || user.Plan == userCtx.Plan {
		return
	}
	if session.GetSessionValue(c, usercontext.KeyUserID) == "" {
		return
	}
	if err := session.SetSessionValue(c, usercontext.KeyPlan, user.Plan); err != nil {
		log.Warnf("[Checkout] Could not refresh session plan for %s: %v", user.ID, err)
	}
}

func purchaseError(c *fiber.Ctx, err error) error {
	if errors.Is(err, billing.ErrPurchaseSessionNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Purchase session not found")
	}
	log.Errorf("[Checkout] Purchase lookup failed: %v", err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load purchase session")
}
