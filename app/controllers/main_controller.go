package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/internal/pkg/catalog"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

var homeTabs = []string{"", catalogTabBeginner, catalogTabAdvanced}

const (
	catalogTabBeginner = "BEGINNER"
	catalogTabAdvanced = "ADVANCED"
)

// HandleHome renders the course list with the beginner/advanced tabs.
func HandleHome(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	tab := strings.ToUpper(strings.TrimSpace(c.Query("category")))
	valid := false
	for _, t := range homeTabs {
		if t == tab {
			valid = true
			break
		}
	}
	if !valid {
		tab = ""
	}

	courses, err := deps.Catalog.List(tab, userCtx.UserID)
	if err != nil {
		log.Errorf("[Catalog] Could not list courses: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Could not load courses")
	}

	data := pageData(c, "Courses")
	data["Courses"] = courses
	data["Tab"] = tab
	data["HasSubscription"] = entitlements.IncludesAllCourses(entitlements.ParsePlan(userCtx.Plan))
	data["PricingPlanID"] = env.GetEnv("STRIPE_PRICING_PLAN_ID", "")
	return c.Render("home", data, "layouts/main")
}

// HandleCourse renders one course; lessons are listed for owners only.
func HandleCourse(c *fiber.Ctx) error {
	detail, err := deps.Catalog.ByURL(c.Params("url"), usercontext.GetUserID(c))
	if errors.Is(err, catalog.ErrCourseNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Course not found")
	}
	if err != nil {
		log.Errorf("[Catalog] Could not load course %s: %v", c.Params("url"), err)
		return fiber.NewError(fiber.StatusInternalServerError, "Could not load course")
	}

	data := pageData(c, detail.Description)
	data["Course"] = detail
	return c.Render("course", data, "layouts/main")
}
