package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseCategories(t *testing.T) {
	c := &Course{}
	c.SetCategories([]string{" beginner", "ADVANCED", "", "Beginner"})

	assert.Equal(t, "BEGINNER,ADVANCED", c.Categories)
	assert.Equal(t, []string{CategoryBeginner, CategoryAdvanced}, c.CategoryList())
	assert.True(t, c.HasCategory("advanced"))
	assert.False(t, c.HasCategory("EXPERT"))
}

func TestCourseCategoryListEmpty(t *testing.T) {
	c := &Course{}
	assert.Empty(t, c.CategoryList())
	assert.False(t, c.HasCategory(CategoryBeginner))
}

func TestCoursePriceInCents(t *testing.T) {
	c := &Course{Price: 50}
	assert.Equal(t, int64(5000), c.PriceInCents())
}

func TestCourseValidate(t *testing.T) {
	c := &Course{URL: "angular-for-beginners", Description: "Angular For Beginners", Price: 10}
	require.NoError(t, c.Validate())

	c.Description = ""
	assert.Error(t, c.Validate())

	c.Description = "Angular For Beginners"
	c.Price = -1
	assert.Error(t, c.Validate())
}

func TestPurchaseSessionKind(t *testing.T) {
	courseID := uint(3)
	course := &PurchaseSession{CourseID: &courseID, Status: PurchaseStatusOngoing}
	sub := &PurchaseSession{PricingPlanID: "price_123", Status: PurchaseStatusCompleted}

	assert.Equal(t, PurchaseKindCourse, course.Kind())
	assert.True(t, course.IsOngoing())
	assert.False(t, course.IsCompleted())

	assert.Equal(t, PurchaseKindSubscription, sub.Kind())
	assert.True(t, sub.IsCompleted())
}

func TestUserHasSubscription(t *testing.T) {
	var nilUser *User
	assert.False(t, nilUser.HasSubscription())
	assert.False(t, (&User{Plan: PlanFree}).HasSubscription())
	assert.True(t, (&User{Plan: PlanPremium}).HasSubscription())
}

func TestWebhookEventNeedsProcessing(t *testing.T) {
	e := &BillingWebhookEvent{}
	assert.True(t, e.NeedsProcessing())

	now := e.CreatedAt
	e.ProcessedAt = &now
	assert.False(t, e.NeedsProcessing())

	e.ProcessingError = "boom"
	assert.True(t, e.NeedsProcessing())
}
