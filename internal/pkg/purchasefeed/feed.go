// Package purchasefeed broadcasts purchase session status changes so the
// checkout result page can stop waiting as soon as a purchase completes.
package purchasefeed

import (
	"context"
	"time"
)

// Update is one status change of a purchase session.
type Update struct {
	PurchaseSessionID string    `json:"purchaseSessionId"`
	UserID            string    `json:"userId"`
	Status            string    `json:"status"`
	CourseID          uint      `json:"courseId,omitempty"`
	PricingPlanID     string    `json:"pricingPlanId,omitempty"`
	At                time.Time `json:"at"`
}

// Feed publishes updates and lets callers block until a session reaches a
// given status. An empty status matches any update.
type Feed interface {
	Publish(ctx context.Context, u Update) error
	Wait(ctx context.Context, purchaseSessionID, status string) (Update, error)
}

func matches(u Update, status string) bool {
	return status == "" || u.Status == status
}
