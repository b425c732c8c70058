package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	PlanFree       = "free"
	PlanPremium    = "premium"
	PlanPremiumMax = "premium_max"
)

// User is keyed by the identity provider's uid. Rows are created lazily the
// first time a purchase is fulfilled.
type User struct {
	ID               string         `gorm:"type:varchar(128);primaryKey" json:"id"`
	Email            string         `gorm:"type:varchar(200);default:''" json:"email"`
	StripeCustomerID string         `gorm:"type:varchar(255);default:'';index" json:"-"`
	PricingPlanID    string         `gorm:"type:varchar(191);default:''" json:"pricingPlanId,omitempty"`
	Plan             string         `gorm:"type:varchar(50);default:'free'" json:"plan"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasSubscription reports whether the user currently holds a paid plan.
func (u *User) HasSubscription() bool {
	return u != nil && u.Plan != "" && u.Plan != PlanFree
}

// OwnedCourse grants a user access to one course.
type OwnedCourse struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	UserID            string    `gorm:"type:varchar(128);not null;index:ux_user_courses_owned,unique,priority:1" json:"userId"`
	CourseID          uint      `gorm:"not null;index:ux_user_courses_owned,unique,priority:2" json:"courseId"`
	PurchaseSessionID string    `gorm:"type:char(36);default:''" json:"purchaseSessionId"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created"`
}

func (OwnedCourse) TableName() string {
	return "user_courses_owned"
}
