package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
)

const reconcileBatchSize = 100

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	Checked   int
	Fulfilled int
	Expired   int
	Failed    int
}

// ReconcileStaleSessions asks Stripe about ongoing purchase sessions older
// than olderThan. Completed checkouts are fulfilled as if the webhook had
// arrived, expired ones are marked expired.
func (s *Service) ReconcileStaleSessions(ctx context.Context, olderThan time.Duration) (ReconcileReport, error) {
	var report ReconcileReport
	sessions, err := s.repo.ListStaleOngoingSessions(ctx, s.now().Add(-olderThan), reconcileBatchSize)
	if err != nil {
		return report, fmt.Errorf("list stale purchase sessions: %w", err)
	}

	for i := range sessions {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		ps := &sessions[i]
		report.Checked++

		if ps.StripeCheckoutSessionID == "" {
			// Stripe never returned a session, so nothing can complete it.
			if _, err := s.repo.MarkPurchaseSessionExpired(ctx, ps.ID); err != nil {
				report.Failed++
				log.Warnf("[Reconcile] Could not expire %s: %v", ps.ID, err)
				continue
			}
			s.metrics.PurchasesExpired.Inc()
			report.Expired++
			continue
		}

		cc, err := s.gateway.GetCheckoutSession(ctx, ps.StripeCheckoutSessionID)
		if err != nil {
			report.Failed++
			log.Warnf("[Reconcile] Could not retrieve Stripe session %s for %s: %v", ps.StripeCheckoutSessionID, ps.ID, err)
			continue
		}

		switch cc.Status {
		case string(stripe.CheckoutSessionStatusComplete):
			if cc.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusUnpaid) {
				continue
			}
			if err := s.fulfill(ctx, ps, *cc); err != nil {
				report.Failed++
				log.Errorf("[Reconcile] Could not fulfill %s: %v", ps.ID, err)
				continue
			}
			report.Fulfilled++
		case string(stripe.CheckoutSessionStatusExpired):
			if err := s.expirePurchaseSession(ctx, ps.ID); err != nil {
				report.Failed++
				log.Warnf("[Reconcile] Could not expire %s: %v", ps.ID, err)
				continue
			}
			report.Expired++
		}
	}

	if report.Checked > 0 {
		log.Infof("[Reconcile] Checked %d stale purchase sessions: %d fulfilled, %d expired, %d failed",
			report.Checked, report.Fulfilled, report.Expired, report.Failed)
	}
	return report, nil
}
