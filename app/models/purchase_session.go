package models

import "time"

const (
	PurchaseStatusOngoing   = "ongoing"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusExpired   = "expired"
)

const (
	PurchaseKindCourse       = "course"
	PurchaseKindSubscription = "subscription"
)

// PurchaseSession is the local record of one checkout attempt. Exactly one of
// CourseID and PricingPlanID is set.
type PurchaseSession struct {
	ID                      string     `gorm:"type:char(36);primaryKey" json:"id"`
	UserID                  string     `gorm:"type:varchar(128);not null;index" json:"userId"`
	CourseID                *uint      `gorm:"index" json:"courseId,omitempty"`
	PricingPlanID           string     `gorm:"type:varchar(191);default:''" json:"pricingPlanId,omitempty"`
	Email                   string     `gorm:"type:varchar(200);default:''" json:"-"`
	Status                  string     `gorm:"type:varchar(20);not null;default:'ongoing';index:idx_purchase_sessions_status_created,priority:1" json:"status"`
	StripeCheckoutSessionID string     `gorm:"type:varchar(255);default:'';index" json:"-"`
	StripeCustomerID        string     `gorm:"type:varchar(255);default:''" json:"-"`
	CreatedAt               time.Time  `gorm:"autoCreateTime;index:idx_purchase_sessions_status_created,priority:2" json:"created"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"-"`
	CompletedAt             *time.Time `gorm:"type:timestamp;default:null" json:"completed,omitempty"`
}

// Kind tells whether the session buys a single course or a subscription.
func (p *PurchaseSession) Kind() string {
	if p.CourseID != nil {
		return PurchaseKindCourse
	}
	return PurchaseKindSubscription
}

func (p *PurchaseSession) IsCompleted() bool {
	return p.Status == PurchaseStatusCompleted
}

func (p *PurchaseSession) IsOngoing() bool {
	return p.Status == PurchaseStatusOngoing
}
