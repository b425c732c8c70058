package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CourseFox/app/models"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	CreatePurchaseSession(ctx context.Context, ps *models.PurchaseSession) error
	GetPurchaseSession(ctx context.Context, id string) (*models.PurchaseSession, error)
	AttachCheckoutSession(ctx context.Context, id, stripeSessionID string) error
	ListStaleOngoingSessions(ctx context.Context, before time.Time, limit int) ([]models.PurchaseSession, error)
	MarkPurchaseSessionExpired(ctx context.Context, id string) (bool, error)
	FulfillCoursePurchase(ctx context.Context, in CourseFulfillment) (bool, error)
	FulfillSubscriptionPurchase(ctx context.Context, in SubscriptionFulfillment) (bool, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	SetUserPlan(ctx context.Context, userID, plan string) error
	FindActivePlanMapping(ctx context.Context, provider, providerPlanRef, interval string) (*models.BillingPlanMapping, error)
	UpsertPlanMapping(ctx context.Context, m *models.BillingPlanMapping) error
	UpsertSubscription(ctx context.Context, sub *models.BillingSubscription) error
	GetSubscription(ctx context.Context, provider, providerSubscriptionID string) (*models.BillingSubscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.BillingSubscription, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePurchaseSession(ctx context.Context, ps *models.PurchaseSession) error {
	return r.db.WithContext(ctx).Create(ps).Error
}

func (r *gormRepository) GetPurchaseSession(ctx context.Context, id string) (*models.PurchaseSession, error) {
	var ps models.PurchaseSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ps).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseSessionNotFound
		}
		return nil, err
	}
	return &ps, nil
}

func (r *gormRepository) AttachCheckoutSession(ctx context.Context, id, stripeSessionID string) error {
	return r.db.WithContext(ctx).Model(&models.PurchaseSession{}).
		Where("id = ?", id).
		Update("stripe_checkout_session_id", stripeSessionID).Error
}

func (r *gormRepository) ListStaleOngoingSessions(ctx context.Context, before time.Time, limit int) ([]models.PurchaseSession, error) {
	var sessions []models.PurchaseSession
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PurchaseStatusOngoing, before).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&sessions).Error
	return sessions, err
}

func (r *gormRepository) MarkPurchaseSessionExpired(ctx context.Context, id string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.PurchaseSession{}).
		Where("id = ? AND status = ?", id, models.PurchaseStatusOngoing).
		Update("status", models.PurchaseStatusExpired)
	return tx.RowsAffected > 0, tx.Error
}

// completeSession flips an ongoing session to completed. It returns false when
// the session had already been completed and ErrPurchaseSessionExpired when it
// expired first.
func completeSession(tx *gorm.DB, id, stripeCustomerID string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.PurchaseStatusCompleted,
		"completed_at": &now,
	}
	if stripeCustomerID != "" {
		updates["stripe_customer_id"] = stripeCustomerID
	}
	res := tx.Model(&models.PurchaseSession{}).
		Where("id = ? AND status = ?", id, models.PurchaseStatusOngoing).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var current models.PurchaseSession
	if err := tx.Select("id", "status").Where("id = ?", id).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrPurchaseSessionNotFound
		}
		return false, err
	}
	if current.Status == models.PurchaseStatusExpired {
		return false, ErrPurchaseSessionExpired
	}
	return false, nil
}

// mergeUser creates the user row or merges the given non-empty columns into it.
func mergeUser(tx *gorm.DB, user *models.User) error {
	columns := []string{"updated_at"}
	if user.StripeCustomerID != "" {
		columns = append(columns, "stripe_customer_id")
	}
	if user.PricingPlanID != "" {
		columns = append(columns, "pricing_plan_id", "plan")
	}
	if user.Email != "" {
		columns = append(columns, "email")
	}
	if user.Plan == "" {
		user.Plan = models.PlanFree
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(user).Error
}

func (r *gormRepository) FulfillCoursePurchase(ctx context.Context, in CourseFulfillment) (bool, error) {
	var fulfilled bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := completeSession(tx, in.PurchaseSessionID, in.StripeCustomerID)
		if err != nil || !ok {
			return err
		}
		owned := &models.OwnedCourse{
			UserID:            in.UserID,
			CourseID:          in.CourseID,
			PurchaseSessionID: in.PurchaseSessionID,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(owned).Error; err != nil {
			return err
		}
		if err := mergeUser(tx, &models.User{
			ID:               in.UserID,
			Email:            in.Email,
			StripeCustomerID: in.StripeCustomerID,
		}); err != nil {
			return err
		}
		fulfilled = true
		return nil
	})
	return fulfilled, err
}

func (r *gormRepository) FulfillSubscriptionPurchase(ctx context.Context, in SubscriptionFulfillment) (bool, error) {
	var fulfilled bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := completeSession(tx, in.PurchaseSessionID, in.StripeCustomerID)
		if err != nil || !ok {
			return err
		}
		if err := mergeUser(tx, &models.User{
			ID:               in.UserID,
			Email:            in.Email,
			StripeCustomerID: in.StripeCustomerID,
			PricingPlanID:    in.PricingPlanID,
			Plan:             in.InternalPlan,
		}); err != nil {
			return err
		}
		if in.Subscription != nil && in.Subscription.ProviderSubscriptionID != "" {
			sub := subscriptionRow(*in.Subscription, in.InternalPlan)
			if err := upsertSubscription(tx, sub); err != nil {
				return err
			}
		}
		fulfilled = true
		return nil
	})
	return fulfilled, err
}

func (r *gormRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) SetUserPlan(ctx context.Context, userID, plan string) error {
	updates := map[string]interface{}{"plan": plan}
	if plan == models.PlanFree {
		updates["pricing_plan_id"] = ""
	}
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}

func (r *gormRepository) FindActivePlanMapping(ctx context.Context, provider, providerPlanRef, interval string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_plan_ref = ? AND billing_interval = ? AND is_active = ?", provider, providerPlanRef, interval, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) UpsertPlanMapping(ctx context.Context, m *models.BillingPlanMapping) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_plan_ref"},
			{Name: "billing_interval"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"internal_plan",
			"label",
			"is_active",
			"updated_at",
		}),
	}).Create(m).Error
}

func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.BillingSubscription) error {
	return upsertSubscription(r.db.WithContext(ctx), sub)
}

func upsertSubscription(db *gorm.DB, sub *models.BillingSubscription) error {
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"provider_plan_ref",
			"internal_plan",
			"billing_interval",
			"status",
			"current_period_end",
			"cancel_at_period_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return db.Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) GetSubscription(ctx context.Context, provider, providerSubscriptionID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func subscriptionRow(in NormalizedSubscription, internalPlan string) *models.BillingSubscription {
	status := in.Status
	if status == "" {
		status = models.BillingStatusActive
	}
	return &models.BillingSubscription{
		UserID:                 in.UserID,
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: in.ProviderSubscriptionID,
		ProviderPlanRef:        in.ProviderPlanRef,
		InternalPlan:           normalizePlan(internalPlan),
		BillingInterval:        normalizeInterval(in.BillingInterval),
		Status:                 status,
		CurrentPeriodEnd:       in.CurrentPeriodEnd,
		CancelAtPeriodEnd:      in.CancelAtPeriodEnd,
	}
}
