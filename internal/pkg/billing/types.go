package billing

import "time"

// CheckoutRequest asks for a Stripe checkout session for either one course or
// one pricing plan.
type CheckoutRequest struct {
	UserID        string
	Email         string
	CourseID      uint   `validate:"required_without=PricingPlanID,excluded_with=PricingPlanID"`
	PricingPlanID string `validate:"required_without=CourseID,excluded_with=CourseID"`
	CallbackURL   string `validate:"required,url"`
}

// CheckoutSessionResult is returned to the browser, which redirects to Stripe.
type CheckoutSessionResult struct {
	StripeCheckoutSessionID string `json:"stripeCheckoutSessionId"`
	StripePublicKey         string `json:"stripePublicKey"`
	PurchaseSessionID       string `json:"purchaseSessionId,omitempty"`
}

// WebhookResult describes what happened to a delivered Stripe event.
type WebhookResult struct {
	EventID   string
	EventType string
	Duplicate bool
	Ignored   bool
}

// CompletedCheckout is the subset of a Stripe checkout session needed to
// fulfill the matching purchase session.
type CompletedCheckout struct {
	StripeSessionID   string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	Customer          string `json:"customer"`
	CustomerEmail     string `json:"customer_email"`
	CustomerDetails   *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Mode          string `json:"mode"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Subscription  string `json:"subscription"`
}

// Email returns the address the buyer entered on Stripe, if any.
func (c CompletedCheckout) Email() string {
	if c.CustomerDetails != nil && c.CustomerDetails.Email != "" {
		return c.CustomerDetails.Email
	}
	return c.CustomerEmail
}

// NormalizedSubscription is the shape used when syncing Stripe subscription
// state into local tables.
type NormalizedSubscription struct {
	UserID                 string
	ProviderSubscriptionID string
	ProviderPlanRef        string
	BillingInterval        string
	Status                 string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}

// CourseFulfillment grants one course to a user.
type CourseFulfillment struct {
	PurchaseSessionID string
	UserID            string
	CourseID          uint
	StripeCustomerID  string
	Email             string
}

// SubscriptionFulfillment moves a user onto a paid plan.
type SubscriptionFulfillment struct {
	PurchaseSessionID string
	UserID            string
	PricingPlanID     string
	StripeCustomerID  string
	Email             string
	InternalPlan      string
	// Subscription is stored alongside when Stripe already created one.
	Subscription *NormalizedSubscription
}
