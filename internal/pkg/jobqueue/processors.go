package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/mail"
)

// Reconciler recovers purchases whose webhook never arrived.
type Reconciler interface {
	ReconcileStaleSessions(ctx context.Context, olderThan time.Duration) (billing.ReconcileReport, error)
}

// NewReconcileHandler runs a reconciliation sweep. The payload may override
// the default staleness threshold.
func NewReconcileHandler(r Reconciler, defaultOlderThan time.Duration) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := ReconcilePurchasesJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid reconcile payload: %w", err)
		}
		olderThan := defaultOlderThan
		if payload.OlderThanMinutes > 0 {
			olderThan = time.Duration(payload.OlderThanMinutes) * time.Minute
		}
		report, err := r.ReconcileStaleSessions(ctx, olderThan)
		if err != nil {
			return err
		}
		if report.Failed > 0 {
			log.Warnf("[JobQueue] Reconcile left %d purchase sessions for the next run", report.Failed)
		}
		return nil
	}
}

// PurchaseLookup reads purchase sessions for receipts.
type PurchaseLookup interface {
	GetPurchaseSession(ctx context.Context, id string) (*models.PurchaseSession, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// SendFunc delivers one email; mail.SendMail in production.
type SendFunc func(to, subject, body string) error

// ReceiptConfig holds what the receipt text needs besides the purchase.
type ReceiptConfig struct {
	BaseURL  string
	Currency string
}

// NewReceiptHandler emails the confirmation for a completed purchase.
func NewReceiptHandler(purchases PurchaseLookup, courses repository.CourseRepository, send SendFunc, cfg ReceiptConfig) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := SendReceiptJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid receipt payload: %w", err)
		}
		ps, err := purchases.GetPurchaseSession(ctx, payload.PurchaseSessionID)
		if err != nil {
			return err
		}
		if !ps.IsCompleted() {
			return fmt.Errorf("purchase session %s is %s", ps.ID, ps.Status)
		}

		to := ps.Email
		if user, err := purchases.GetUser(ctx, ps.UserID); err == nil && user.Email != "" {
			to = user.Email
		}
		if to == "" {
			log.Warnf("[JobQueue] No email address for purchase session %s, skipping receipt", ps.ID)
			return nil
		}

		receipt := mail.Receipt{
			PurchaseSessionID: ps.ID,
			BaseURL:           cfg.BaseURL,
			CompletedAt:       time.Now(),
		}
		if ps.CompletedAt != nil {
			receipt.CompletedAt = *ps.CompletedAt
		}
		if ps.CourseID != nil {
			course, err := courses.GetByID(*ps.CourseID)
			if err != nil {
				return fmt.Errorf("load course %d: %w", *ps.CourseID, err)
			}
			receipt.ItemName = course.Description
			receipt.Amount = mail.FormatAmount(course.PriceInCents(), cfg.Currency)
		} else {
			receipt.IsPlan = true
			receipt.ItemName = ps.PricingPlanID
		}

		subject, body, err := mail.RenderReceipt(receipt)
		if err != nil {
			return err
		}
		if err := send(to, subject, body); err != nil {
			if errors.Is(err, mail.ErrNotConfigured) {
				log.Warnf("[JobQueue] SMTP not configured, receipt for %s not sent", ps.ID)
				return nil
			}
			return err
		}
		return nil
	}
}
