package billing

import (
	"strings"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
)

// planRanks orders plans so the best active subscription wins.
var planRanks = map[entitlements.Plan]int{
	entitlements.PlanFree:       0,
	entitlements.PlanPremium:    1,
	entitlements.PlanPremiumMax: 2,
}

func normalizePlan(plan string) string {
	return string(entitlements.ParsePlan(plan))
}

func planRank(plan string) int {
	return planRanks[entitlements.ParsePlan(plan)]
}

func normalizeInterval(interval string) string {
	switch i := strings.ToLower(strings.TrimSpace(interval)); i {
	case models.BillingIntervalMonth, models.BillingIntervalYear:
		return i
	default:
		return models.BillingIntervalUnknown
	}
}

// isEntitlingStatus reports whether a Stripe subscription status still grants
// its plan. past_due keeps access while Stripe retries the payment.
func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.BillingStatusActive, models.BillingStatusTrialing, models.BillingStatusPastDue:
		return true
	}
	return false
}
