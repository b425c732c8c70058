package billing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/CourseFox/app/models"
)

func TestCreateCheckoutSessionForCourse(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "angular-course", 50)
	require.NoError(t, env.db.Create(&models.User{ID: "uid-1", StripeCustomerID: "cus_known"}).Error)

	res, err := env.svc.CreateCheckoutSession(context.Background(), CheckoutRequest{
		UserID:      "uid-1",
		Email:       "u1@example.com",
		CourseID:    course.ID,
		CallbackURL: "http://localhost:3000/stripe-checkout/",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.StripeCheckoutSessionID)
	assert.Equal(t, "pk_test_123", res.StripePublicKey)

	params := env.gateway.lastParams(t)
	assert.Equal(t, string(stripe.CheckoutSessionModePayment), *params.Mode)
	assert.Equal(t, res.PurchaseSessionID, *params.ClientReferenceID)
	assert.Equal(t, "http://localhost:3000/stripe-checkout/?purchaseResult=success&ongoingPurchaseSessionId="+res.PurchaseSessionID, *params.SuccessURL)
	assert.Equal(t, "http://localhost:3000/stripe-checkout/?purchaseResult=failed", *params.CancelURL)
	assert.Equal(t, "card", *params.PaymentMethodTypes[0])
	assert.Equal(t, "cus_known", *params.Customer)
	assert.Nil(t, params.CustomerEmail)
	assert.Nil(t, params.CustomerCreation)

	require.Len(t, params.LineItems, 1)
	item := params.LineItems[0]
	assert.Equal(t, int64(1), *item.Quantity)
	assert.Equal(t, int64(5000), *item.PriceData.UnitAmount)
	assert.Equal(t, "usd", *item.PriceData.Currency)
	assert.Equal(t, "Course angular-course", *item.PriceData.ProductData.Name)
	assert.Equal(t, "All about angular-course", *item.PriceData.ProductData.Description)

	ps := env.purchaseSession(t, res.PurchaseSessionID)
	assert.Equal(t, models.PurchaseStatusOngoing, ps.Status)
	assert.Equal(t, "uid-1", ps.UserID)
	require.NotNil(t, ps.CourseID)
	assert.Equal(t, course.ID, *ps.CourseID)
	assert.Empty(t, ps.PricingPlanID)
	assert.Equal(t, "cs_test_1", ps.StripeCheckoutSessionID)
	assert.Equal(t, []string{models.PurchaseStatusOngoing}, env.feed.statuses())
}

func TestCreateCheckoutSessionForSubscription(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.CreateCheckoutSession(context.Background(), CheckoutRequest{
		UserID:        "uid-2",
		Email:         "u2@example.com",
		PricingPlanID: "price_monthly",
		CallbackURL:   "https://courses.example.com/stripe-checkout",
	})
	require.NoError(t, err)

	params := env.gateway.lastParams(t)
	assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), *params.Mode)
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, "price_monthly", *params.LineItems[0].Price)
	assert.Nil(t, params.LineItems[0].PriceData)
	assert.Nil(t, params.Customer)
	assert.Equal(t, "u2@example.com", *params.CustomerEmail)

	ps := env.purchaseSession(t, res.PurchaseSessionID)
	assert.Nil(t, ps.CourseID)
	assert.Equal(t, "price_monthly", ps.PricingPlanID)
	assert.Equal(t, models.PurchaseKindSubscription, ps.Kind())
}

func TestCreateCheckoutSessionNewCustomerInPaymentMode(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "new-customer", 10)

	_, err := env.svc.CreateCheckoutSession(context.Background(), CheckoutRequest{
		UserID:      "uid-new",
		CourseID:    course.ID,
		CallbackURL: "http://localhost/stripe-checkout",
	})
	require.NoError(t, err)

	params := env.gateway.lastParams(t)
	require.NotNil(t, params.CustomerCreation)
	assert.Equal(t, "always", *params.CustomerCreation)
}

func TestCreateCheckoutSessionRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "valid", 10)
	ctx := context.Background()

	_, err := env.svc.CreateCheckoutSession(ctx, CheckoutRequest{CourseID: course.ID, CallbackURL: "http://x/cb"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	cases := map[string]CheckoutRequest{
		"neither":      {UserID: "u", CallbackURL: "http://x/cb"},
		"both":         {UserID: "u", CourseID: course.ID, PricingPlanID: "price_1", CallbackURL: "http://x/cb"},
		"no callback":  {UserID: "u", CourseID: course.ID},
		"bad callback": {UserID: "u", CourseID: course.ID, CallbackURL: "not a url"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.CreateCheckoutSession(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidCheckoutRequest)
		})
	}

	_, err = env.svc.CreateCheckoutSession(ctx, CheckoutRequest{UserID: "u", CourseID: 9999, CallbackURL: "http://x/cb"})
	assert.ErrorIs(t, err, ErrCourseNotFound)

	var count int64
	env.db.Model(&models.PurchaseSession{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreateCheckoutSessionGatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "gateway-down", 10)
	env.gateway.newErr = errors.New("stripe unavailable")

	_, err := env.svc.CreateCheckoutSession(context.Background(), CheckoutRequest{
		UserID:      "uid-1",
		CourseID:    course.ID,
		CallbackURL: "http://localhost/stripe-checkout",
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "stripe unavailable"))
	assert.Empty(t, env.feed.statuses())
}

func TestGetPurchaseSessionIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&models.PurchaseSession{
		ID: "ps-owner", UserID: "uid-1", PricingPlanID: "price_1", Status: models.PurchaseStatusOngoing,
	}).Error)

	ps, err := env.svc.GetPurchaseSession(context.Background(), "ps-owner", "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "ps-owner", ps.ID)

	_, err = env.svc.GetPurchaseSession(context.Background(), "ps-owner", "uid-2")
	assert.ErrorIs(t, err, ErrPurchaseSessionNotFound)

	_, err = env.svc.GetPurchaseSession(context.Background(), "missing", "uid-1")
	assert.ErrorIs(t, err, ErrPurchaseSessionNotFound)
}

func TestWaitForPurchaseCompleted(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	require.NoError(t, env.db.Create(&models.PurchaseSession{
		ID: "ps-done", UserID: "uid-1", PricingPlanID: "price_1",
		Status: models.PurchaseStatusCompleted, CompletedAt: &now,
	}).Error)
	require.NoError(t, env.db.Create(&models.PurchaseSession{
		ID: "ps-pending", UserID: "uid-1", PricingPlanID: "price_1", Status: models.PurchaseStatusOngoing,
	}).Error)

	ps, err := env.svc.WaitForPurchaseCompleted(context.Background(), "ps-done", "uid-1")
	require.NoError(t, err)
	assert.True(t, ps.IsCompleted())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	ps, err = env.svc.WaitForPurchaseCompleted(ctx, "ps-pending", "uid-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, ps)
	assert.True(t, ps.IsOngoing())
}

func TestWaitForPurchaseCompletedWakesOnFulfillment(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "wake", 10)
	courseID := course.ID
	require.NoError(t, env.db.Create(&models.PurchaseSession{
		ID: "ps-wake", UserID: "uid-1", CourseID: &courseID, Status: models.PurchaseStatusOngoing,
	}).Error)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = env.svc.FulfillCoursePurchase(context.Background(), CourseFulfillment{
			PurchaseSessionID: "ps-wake", UserID: "uid-1", CourseID: courseID,
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ps, err := env.svc.WaitForPurchaseCompleted(ctx, "ps-wake", "uid-1")
	require.NoError(t, err)
	assert.True(t, ps.IsCompleted())
}

func TestFulfillCoursePurchaseIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "idempotent", 10)
	courseID := course.ID
	require.NoError(t, env.db.Create(&models.PurchaseSession{
		ID: "ps-1", UserID: "uid-1", CourseID: &courseID, Status: models.PurchaseStatusOngoing,
	}).Error)
	// The user already owns the course through an earlier purchase.
	require.NoError(t, env.db.Create(&models.OwnedCourse{UserID: "uid-1", CourseID: courseID}).Error)

	in := CourseFulfillment{PurchaseSessionID: "ps-1", UserID: "uid-1", CourseID: courseID, StripeCustomerID: "cus_1"}
	ok, err := env.svc.FulfillCoursePurchase(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.FulfillCoursePurchase(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, ok)

	var owned int64
	env.db.Model(&models.OwnedCourse{}).Where("user_id = ?", "uid-1").Count(&owned)
	assert.Equal(t, int64(1), owned)

	ps := env.purchaseSession(t, "ps-1")
	assert.True(t, ps.IsCompleted())
	assert.NotNil(t, ps.CompletedAt)
	assert.Equal(t, "cus_1", ps.StripeCustomerID)

	_, err = env.svc.FulfillCoursePurchase(context.Background(), CourseFulfillment{
		PurchaseSessionID: "missing", UserID: "uid-1", CourseID: courseID,
	})
	assert.ErrorIs(t, err, ErrPurchaseSessionNotFound)
}

func TestFulfillPurchaseDoesNotReviveExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	course := env.createCourse(t, "expired", 10)
	courseID := course.ID
	require.NoError(t, env.db.Create(&models.PurchaseSession{
		ID: "ps-course-exp", UserID: "uid-1", CourseID: &courseID, Status: models.PurchaseStatusExpired,
	}).Error)
	require.NoError(t, env.db.Create(&models.PurchaseSession{
		ID: "ps-sub-exp", UserID: "uid-1", PricingPlanID: "price_1", Status: models.PurchaseStatusExpired,
	}).Error)

	ok, err := env.svc.FulfillCoursePurchase(context.Background(), CourseFulfillment{
		PurchaseSessionID: "ps-course-exp", UserID: "uid-1", CourseID: courseID,
	})
	assert.ErrorIs(t, err, ErrPurchaseSessionExpired)
	assert.False(t, ok)

	ok, err = env.svc.FulfillSubscriptionPurchase(context.Background(), SubscriptionFulfillment{
		PurchaseSessionID: "ps-sub-exp", UserID: "uid-1", PricingPlanID: "price_1",
	})
	assert.ErrorIs(t, err, ErrPurchaseSessionExpired)
	assert.False(t, ok)

	assert.Equal(t, models.PurchaseStatusExpired, env.purchaseSession(t, "ps-course-exp").Status)
	assert.Equal(t, models.PurchaseStatusExpired, env.purchaseSession(t, "ps-sub-exp").Status)

	var users int64
	env.db.Model(&models.User{}).Where("id = ?", "uid-1").Count(&users)
	assert.Zero(t, users)
}

func TestFulfillSubscriptionPurchaseKeepsExistingCustomer(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&models.User{ID: "uid-1", Email: "old@example.com", StripeCustomerID: "cus_old", Plan: models.PlanFree}).Error)
	require.NoError(t, env.db.Create(&models.PurchaseSession{
		ID: "ps-sub", UserID: "uid-1", PricingPlanID: "price_unmapped", Status: models.PurchaseStatusOngoing,
	}).Error)

	ok, err := env.svc.FulfillSubscriptionPurchase(context.Background(), SubscriptionFulfillment{
		PurchaseSessionID: "ps-sub",
		UserID:            "uid-1",
		PricingPlanID:     "price_unmapped",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	var user models.User
	require.NoError(t, env.db.First(&user, "id = ?", "uid-1").Error)
	assert.Equal(t, "cus_old", user.StripeCustomerID)
	assert.Equal(t, "old@example.com", user.Email)
	assert.Equal(t, "price_unmapped", user.PricingPlanID)
	assert.Equal(t, models.PlanPremium, user.Plan)
}
