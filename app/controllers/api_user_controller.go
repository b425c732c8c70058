package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// HandleGetMe returns the caller's plan and owned courses. Users without a
// stored row yet are reported as free users.
func HandleGetMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusForbidden, "unauthenticated", "User must be authenticated.")
	}

	account, err := deps.Users.GetByID(userCtx.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("[Account] Could not load user %s: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}
	if account == nil {
		account = &models.User{ID: userCtx.UserID, Email: userCtx.Email, Plan: models.PlanFree}
	}

	owned, err := deps.Catalog.OwnedCourseIDs(userCtx.UserID)
	if err != nil {
		log.Errorf("[Account] Could not list owned courses of %s: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load owned courses")
	}

	email := account.Email
	if email == "" {
		email = userCtx.Email
	}
	plan := entitlements.ParsePlan(account.Plan)
	return c.JSON(fiber.Map{
		"id":                 account.ID,
		"email":              email,
		"plan":               plan,
		"pricingPlanId":      account.PricingPlanID,
		"includesAllCourses": entitlements.IncludesAllCourses(plan),
		"ownedCourseIds":     owned,
		"created_at":         formatTime(account.CreatedAt),
	})
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
