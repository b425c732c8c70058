package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
)

const (
	eventCheckoutCompleted      = "checkout.session.completed"
	eventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	eventCheckoutExpired        = "checkout.session.expired"
	eventSubscriptionCreated    = "customer.subscription.created"
	eventSubscriptionUpdated    = "customer.subscription.updated"
	eventSubscriptionDeleted    = "customer.subscription.deleted"
)

// HandleWebhook verifies, records and processes one Stripe delivery.
// Events that can never succeed (unknown purchase session or customer, or a
// completion for a session that already expired) are recorded with their
// error and acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	event, err := s.gateway.ConstructEvent(payload, signatureHeader)
	if err != nil {
		s.metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		return nil, err
	}
	eventType := string(event.Type)
	result := &WebhookResult{EventID: event.ID, EventType: eventType}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       eventType,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		s.metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !created && !stored.NeedsProcessing() {
		log.Infof("[StripeWebhook] Duplicate delivery of %s (%s)", event.ID, eventType)
		s.metrics.WebhookEvents.WithLabelValues(eventType, "duplicate").Inc()
		result.Duplicate = true
		return result, nil
	}

	ignored, procErr := s.dispatch(ctx, event)
	result.Ignored = ignored
	if err := s.MarkWebhookProcessed(ctx, stored.ID, procErr); err != nil {
		log.Errorf("[StripeWebhook] Could not mark event %s processed: %v", event.ID, err)
	}

	switch {
	case procErr == nil && ignored:
		s.metrics.WebhookEvents.WithLabelValues(eventType, "ignored").Inc()
		return result, nil
	case procErr == nil:
		s.metrics.WebhookEvents.WithLabelValues(eventType, "processed").Inc()
		return result, nil
	case errors.Is(procErr, ErrUnknownPurchaseSession), errors.Is(procErr, ErrUnknownCustomer):
		log.Warnf("[StripeWebhook] Event %s (%s) cannot be matched: %v", event.ID, eventType, procErr)
		s.metrics.WebhookEvents.WithLabelValues(eventType, "unmatched").Inc()
		return result, nil
	case errors.Is(procErr, ErrPurchaseSessionExpired):
		// Paid after the session expired; needs a manual refund or grant.
		log.Errorf("[StripeWebhook] Event %s (%s) arrived for an expired purchase session: %v", event.ID, eventType, procErr)
		s.metrics.WebhookEvents.WithLabelValues(eventType, "expired_session").Inc()
		return result, nil
	default:
		log.Errorf("[StripeWebhook] Event %s (%s) failed: %v", event.ID, eventType, procErr)
		s.metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		return result, procErr
	}
}

func (s *Service) dispatch(ctx context.Context, event stripe.Event) (bool, error) {
	switch string(event.Type) {
	case eventCheckoutCompleted, eventCheckoutAsyncSucceeded:
		var cc CompletedCheckout
		if err := decodeEventObject(event, &cc); err != nil {
			return false, err
		}
		return s.onCheckoutSessionCompleted(ctx, cc)
	case eventCheckoutExpired:
		var cc CompletedCheckout
		if err := decodeEventObject(event, &cc); err != nil {
			return false, err
		}
		return false, s.expirePurchaseSession(ctx, cc.ClientReferenceID)
	case eventSubscriptionCreated, eventSubscriptionUpdated, eventSubscriptionDeleted:
		var sub subscriptionPayload
		if err := decodeEventObject(event, &sub); err != nil {
			return false, err
		}
		return false, s.syncStripeSubscription(ctx, sub)
	default:
		return true, nil
	}
}

func (s *Service) onCheckoutSessionCompleted(ctx context.Context, cc CompletedCheckout) (bool, error) {
	if cc.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusUnpaid) {
		log.Infof("[StripeWebhook] Checkout %s completed but unpaid, waiting for async payment", cc.StripeSessionID)
		return true, nil
	}
	ps, err := s.repo.GetPurchaseSession(ctx, strings.TrimSpace(cc.ClientReferenceID))
	if err != nil {
		if errors.Is(err, ErrPurchaseSessionNotFound) {
			return false, fmt.Errorf("%w: %q", ErrUnknownPurchaseSession, cc.ClientReferenceID)
		}
		return false, err
	}
	return false, s.fulfill(ctx, ps, cc)
}

func (s *Service) expirePurchaseSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	expired, err := s.repo.MarkPurchaseSessionExpired(ctx, id)
	if err != nil {
		return err
	}
	if expired {
		s.metrics.PurchasesExpired.Inc()
		if ps, err := s.repo.GetPurchaseSession(ctx, id); err == nil {
			s.publish(ctx, ps, models.PurchaseStatusExpired)
		}
	}
	return nil
}

// fulfill grants what the purchase session paid for. Running it again for a
// completed session is a no-op.
func (s *Service) fulfill(ctx context.Context, ps *models.PurchaseSession, cc CompletedCheckout) error {
	email := cc.Email()
	if email == "" {
		email = ps.Email
	}

	var (
		fulfilled bool
		err       error
	)
	if ps.CourseID != nil {
		fulfilled, err = s.FulfillCoursePurchase(ctx, CourseFulfillment{
			PurchaseSessionID: ps.ID,
			UserID:            ps.UserID,
			CourseID:          *ps.CourseID,
			StripeCustomerID:  cc.Customer,
			Email:             email,
		})
	} else {
		in := SubscriptionFulfillment{
			PurchaseSessionID: ps.ID,
			UserID:            ps.UserID,
			PricingPlanID:     ps.PricingPlanID,
			StripeCustomerID:  cc.Customer,
			Email:             email,
		}
		if cc.Subscription != "" {
			in.Subscription = &NormalizedSubscription{
				UserID:                 ps.UserID,
				ProviderSubscriptionID: cc.Subscription,
				ProviderPlanRef:        ps.PricingPlanID,
				Status:                 models.BillingStatusActive,
			}
		}
		fulfilled, err = s.FulfillSubscriptionPurchase(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("fulfill purchase session %s: %w", ps.ID, err)
	}
	if !fulfilled {
		log.Infof("[StripeWebhook] Purchase session %s already completed", ps.ID)
		return nil
	}

	kind := ps.Kind()
	s.metrics.PurchasesFulfilled.WithLabelValues(kind).Inc()
	s.metrics.FulfillmentLatency.Observe(s.now().Sub(ps.CreatedAt).Seconds())
	log.Infof("[StripeWebhook] Purchase session %s (%s) completed for user %s", ps.ID, kind, ps.UserID)

	ps.Status = models.PurchaseStatusCompleted
	s.publish(ctx, ps, models.PurchaseStatusCompleted)
	if s.receipts != nil {
		if err := s.receipts.ScheduleReceipt(ctx, ps.ID); err != nil {
			log.Warnf("[StripeWebhook] Could not schedule receipt for %s: %v", ps.ID, err)
		}
	}
	return nil
}

// FulfillCoursePurchase completes the session and grants the course in one
// transaction. It reports false when the session was already completed.
func (s *Service) FulfillCoursePurchase(ctx context.Context, in CourseFulfillment) (bool, error) {
	if in.PurchaseSessionID == "" || in.UserID == "" || in.CourseID == 0 {
		return false, errors.New("purchase_session_id, user_id and course_id are required")
	}
	return s.repo.FulfillCoursePurchase(ctx, in)
}

// FulfillSubscriptionPurchase completes the session and moves the user onto
// the plan mapped from the Stripe price, falling back to premium.
func (s *Service) FulfillSubscriptionPurchase(ctx context.Context, in SubscriptionFulfillment) (bool, error) {
	if in.PurchaseSessionID == "" || in.UserID == "" || strings.TrimSpace(in.PricingPlanID) == "" {
		return false, errors.New("purchase_session_id, user_id and pricing_plan_id are required")
	}
	if in.InternalPlan == "" {
		plan, err := s.ResolveMappedPlan(ctx, models.BillingProviderStripe, in.PricingPlanID, models.BillingIntervalUnknown)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		if err != nil || plan == string(entitlements.PlanFree) {
			plan = string(entitlements.PlanPremium)
		}
		in.InternalPlan = plan
	}
	return s.repo.FulfillSubscriptionPurchase(ctx, in)
}

// ResolveMappedPlan resolves a Stripe price id to an internal plan.
func (s *Service) ResolveMappedPlan(ctx context.Context, provider, providerPlanRef, interval string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(provider))
	ref := strings.TrimSpace(providerPlanRef)
	i := normalizeInterval(interval)
	if p == "" || ref == "" {
		return string(entitlements.PlanFree), errors.New("provider and provider plan ref are required")
	}

	// Prefer exact interval match, then mappings that use "unknown".
	candidates := []string{i, models.BillingIntervalUnknown}
	if i == models.BillingIntervalUnknown {
		candidates = []string{models.BillingIntervalUnknown, models.BillingIntervalMonth, models.BillingIntervalYear}
	}
	for _, candidate := range candidates {
		m, err := s.repo.FindActivePlanMapping(ctx, p, ref, candidate)
		if err == nil {
			return normalizePlan(m.InternalPlan), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}
	return string(entitlements.PlanFree), gorm.ErrRecordNotFound
}

// UpsertPlanMapping stores which internal plan a Stripe price grants.
func (s *Service) UpsertPlanMapping(ctx context.Context, providerPlanRef, plan, interval, label string) (*models.BillingPlanMapping, error) {
	ref := strings.TrimSpace(providerPlanRef)
	if ref == "" {
		return nil, errors.New("provider plan ref is required")
	}
	m := &models.BillingPlanMapping{
		Provider:        models.BillingProviderStripe,
		ProviderPlanRef: ref,
		BillingInterval: normalizeInterval(interval),
		InternalPlan:    normalizePlan(plan),
		Label:           strings.TrimSpace(label),
		IsActive:        true,
	}
	if err := s.repo.UpsertPlanMapping(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

type subscriptionPayload struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID        string `json:"id"`
				Recurring *struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (p subscriptionPayload) normalize(userID string) NormalizedSubscription {
	out := NormalizedSubscription{
		UserID:                 userID,
		ProviderSubscriptionID: p.ID,
		Status:                 strings.ToLower(p.Status),
		CancelAtPeriodEnd:      p.CancelAtPeriodEnd,
	}
	periodEnd := p.CurrentPeriodEnd
	if len(p.Items.Data) > 0 {
		item := p.Items.Data[0]
		out.ProviderPlanRef = item.Price.ID
		if item.Price.Recurring != nil {
			out.BillingInterval = item.Price.Recurring.Interval
		}
		if periodEnd == 0 {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	if periodEnd > 0 {
		t := time.Unix(periodEnd, 0).UTC()
		out.CurrentPeriodEnd = &t
	}
	return out
}

func (s *Service) syncStripeSubscription(ctx context.Context, p subscriptionPayload) error {
	if p.ID == "" {
		return errors.New("subscription event without id")
	}
	userID := ""
	if existing, err := s.repo.GetSubscription(ctx, models.BillingProviderStripe, p.ID); err == nil {
		userID = existing.UserID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if userID == "" && p.Customer != "" {
		user, err := s.repo.GetUserByStripeCustomerID(ctx, p.Customer)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %q", ErrUnknownCustomer, p.Customer)
			}
			return err
		}
		userID = user.ID
	}
	if userID == "" {
		return fmt.Errorf("%w: subscription %q", ErrUnknownCustomer, p.ID)
	}

	_, _, err := s.SyncSubscription(ctx, p.normalize(userID))
	return err
}

// SyncSubscription upserts Stripe subscription data and reconciles the user's plan.
func (s *Service) SyncSubscription(ctx context.Context, in NormalizedSubscription) (*models.BillingSubscription, string, error) {
	if in.UserID == "" || strings.TrimSpace(in.ProviderSubscriptionID) == "" {
		return nil, "", errors.New("user_id and provider_subscription_id are required")
	}

	internalPlan, err := s.ResolveMappedPlan(ctx, models.BillingProviderStripe, in.ProviderPlanRef, in.BillingInterval)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && in.ProviderPlanRef != "" {
		return nil, "", err
	}
	if err != nil && in.ProviderPlanRef != "" {
		internalPlan = string(entitlements.PlanPremium)
	}

	sub := subscriptionRow(in, internalPlan)
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return nil, "", err
	}

	effectivePlan, err := s.ReconcileUserPlan(ctx, in.UserID)
	if err != nil {
		return sub, "", err
	}
	return sub, effectivePlan, nil
}

// ReconcileUserPlan computes and writes the best effective plan for a user.
func (s *Service) ReconcileUserPlan(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user_id is required")
	}

	subs, err := s.repo.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return "", err
	}

	best := string(entitlements.PlanFree)
	for _, sub := range subs {
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		candidate := normalizePlan(sub.InternalPlan)
		if planRank(candidate) > planRank(best) {
			best = candidate
		}
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return best, nil
		}
		return "", err
	}
	if normalizePlan(user.Plan) == best {
		return best, nil
	}
	if err := s.repo.SetUserPlan(ctx, userID, best); err != nil {
		return "", err
	}
	log.Infof("[Billing] User %s plan changed from %s to %s", userID, normalizePlan(user.Plan), best)
	return best, nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}
