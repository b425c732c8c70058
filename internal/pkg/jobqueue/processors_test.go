package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/CourseFox/internal/pkg/mail"
)

type fakeReconciler struct {
	olderThan time.Duration
	err       error
}

func (f *fakeReconciler) ReconcileStaleSessions(_ context.Context, olderThan time.Duration) (billing.ReconcileReport, error) {
	f.olderThan = olderThan
	return billing.ReconcileReport{Checked: 1}, f.err
}

func TestReconcileHandler(t *testing.T) {
	r := &fakeReconciler{}
	h := NewReconcileHandler(r, 30*time.Minute)

	require.NoError(t, h(context.Background(), &Job{Payload: ReconcilePurchasesJobPayload{}.ToMap()}))
	assert.Equal(t, 30*time.Minute, r.olderThan)

	require.NoError(t, h(context.Background(), &Job{Payload: ReconcilePurchasesJobPayload{OlderThanMinutes: 5}.ToMap()}))
	assert.Equal(t, 5*time.Minute, r.olderThan)

	r.err = errors.New("db down")
	assert.Error(t, h(context.Background(), &Job{Payload: ReconcilePurchasesJobPayload{}.ToMap()}))
}

type sentMail struct {
	to, subject, body string
}

func seedReceiptData(t *testing.T) (billing.Repository, repository.CourseRepository) {
	t.Helper()
	db := dbtest.NewTestDB(t)

	course := &models.Course{URL: "go-basics", Description: "Go Basics", Price: 29}
	require.NoError(t, db.Create(course).Error)
	require.NoError(t, db.Create(&models.User{ID: "uid-1", Email: "ada@example.com"}).Error)

	done := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.PurchaseSession{
		ID: "ps-course", UserID: "uid-1", CourseID: &course.ID,
		Status: models.PurchaseStatusCompleted, CompletedAt: &done,
	}).Error)
	require.NoError(t, db.Create(&models.PurchaseSession{
		ID: "ps-plan", UserID: "uid-2", PricingPlanID: "price_monthly", Email: "grace@example.com",
		Status: models.PurchaseStatusCompleted, CompletedAt: &done,
	}).Error)
	require.NoError(t, db.Create(&models.PurchaseSession{
		ID: "ps-open", UserID: "uid-1", CourseID: &course.ID, Status: models.PurchaseStatusOngoing,
	}).Error)

	return billing.NewRepository(db), repository.NewCourseRepository(db)
}

func TestReceiptHandler(t *testing.T) {
	purchases, courses := seedReceiptData(t)
	var sent []sentMail
	send := func(to, subject, body string) error {
		sent = append(sent, sentMail{to, subject, body})
		return nil
	}
	h := NewReceiptHandler(purchases, courses, send, ReceiptConfig{BaseURL: "https://courses.test", Currency: "usd"})
	ctx := context.Background()

	t.Run("course purchase", func(t *testing.T) {
		sent = nil
		require.NoError(t, h(ctx, &Job{Payload: SendReceiptJobPayload{PurchaseSessionID: "ps-course"}.ToMap()}))
		require.Len(t, sent, 1)
		assert.Equal(t, "ada@example.com", sent[0].to)
		assert.Contains(t, sent[0].body, "Go Basics")
		assert.Contains(t, sent[0].body, "29.00")
	})

	t.Run("subscription falls back to checkout email", func(t *testing.T) {
		sent = nil
		require.NoError(t, h(ctx, &Job{Payload: SendReceiptJobPayload{PurchaseSessionID: "ps-plan"}.ToMap()}))
		require.Len(t, sent, 1)
		assert.Equal(t, "grace@example.com", sent[0].to)
		assert.Contains(t, sent[0].body, "price_monthly")
	})

	t.Run("ongoing session is retried", func(t *testing.T) {
		sent = nil
		assert.Error(t, h(ctx, &Job{Payload: SendReceiptJobPayload{PurchaseSessionID: "ps-open"}.ToMap()}))
		assert.Empty(t, sent)
	})

	t.Run("unknown session", func(t *testing.T) {
		err := h(ctx, &Job{Payload: SendReceiptJobPayload{PurchaseSessionID: "missing"}.ToMap()})
		assert.ErrorIs(t, err, billing.ErrPurchaseSessionNotFound)
	})
}

func TestReceiptHandlerWithoutSMTP(t *testing.T) {
	purchases, courses := seedReceiptData(t)
	send := func(string, string, string) error { return mail.ErrNotConfigured }
	h := NewReceiptHandler(purchases, courses, send, ReceiptConfig{Currency: "usd"})

	assert.NoError(t, h(context.Background(), &Job{Payload: SendReceiptJobPayload{PurchaseSessionID: "ps-course"}.ToMap()}))
}
