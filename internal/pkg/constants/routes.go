package constants

// Static route constants
const (
	PublicRoute         = "/"
	LoginRoute          = "/login"
	CheckoutResultRoute = "/stripe-checkout"
	StripeWebhookRoute  = "/stripe-webhooks"
	DocsRoute           = "/docs/api/"
	MetricsRoute        = "/metrics"
)
