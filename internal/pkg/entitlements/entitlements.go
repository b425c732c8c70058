package entitlements

import (
	"strings"

	"github.com/ManuelReschke/CourseFox/app/models"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPremium    Plan = "premium"
	PlanPremiumMax Plan = "premium_max"
)

// ParsePlan maps a stored plan string to a Plan, defaulting to free.
func ParsePlan(s string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(s))) {
	case PlanPremiumMax:
		return PlanPremiumMax
	case PlanPremium:
		return PlanPremium
	default:
		return PlanFree
	}
}

// IncludesAllCourses reports whether a plan unlocks the whole catalog.
func IncludesAllCourses(plan Plan) bool {
	switch plan {
	case PlanPremium, PlanPremiumMax:
		return true
	default:
		return false
	}
}

// CanAccessCourse combines the user's plan with individually purchased courses.
func CanAccessCourse(user *models.User, owned map[uint]bool, courseID uint) bool {
	if user != nil && IncludesAllCourses(ParsePlan(user.Plan)) {
		return true
	}
	return owned[courseID]
}
