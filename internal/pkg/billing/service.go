package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CourseFox/internal/pkg/purchasefeed"
)

// ReceiptScheduler queues the confirmation email for a completed purchase.
type ReceiptScheduler interface {
	ScheduleReceipt(ctx context.Context, purchaseSessionID string) error
}

// Service orchestrates Stripe checkout and fulfillment.
type Service struct {
	repo     Repository
	courses  repository.CourseRepository
	gateway  Gateway
	feed     purchasefeed.Feed
	receipts ReceiptScheduler
	metrics  *metrics.Metrics
	currency string
	validate *validator.Validate
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

func WithFeed(feed purchasefeed.Feed) Option {
	return func(s *Service) { s.feed = feed }
}

func WithReceipts(r ReceiptScheduler) Option {
	return func(s *Service) { s.receipts = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithCurrency(currency string) Option {
	return func(s *Service) {
		if c := strings.ToLower(strings.TrimSpace(currency)); c != "" {
			s.currency = c
		}
	}
}

// NewService creates a billing service from injected dependencies.
func NewService(repo Repository, courses repository.CourseRepository, gateway Gateway, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		courses:  courses,
		gateway:  gateway,
		metrics:  metrics.DefaultMetrics,
		currency: "usd",
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway, opts ...Option) *Service {
	return NewService(NewRepository(db), repository.NewCourseRepository(db), gateway, opts...)
}

// SetReceiptScheduler wires the receipt scheduler once the job queue exists.
func (s *Service) SetReceiptScheduler(r ReceiptScheduler) {
	s.receipts = r
}

// CreateCheckoutSession stores an ongoing purchase session and opens the
// matching Stripe checkout session.
func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSessionResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrUnauthenticated
	}
	req.PricingPlanID = strings.TrimSpace(req.PricingPlanID)
	req.CallbackURL = strings.TrimRight(strings.TrimSpace(req.CallbackURL), "/")
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckoutRequest, err)
	}

	ps := &models.PurchaseSession{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Email:         req.Email,
		PricingPlanID: req.PricingPlanID,
		Status:        models.PurchaseStatusOngoing,
		CreatedAt:     s.now(),
	}

	var course *models.Course
	if req.CourseID != 0 {
		c, err := s.courses.GetByID(req.CourseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCourseNotFound
			}
			return nil, err
		}
		course = c
		courseID := c.ID
		ps.CourseID = &courseID
	}
	kind := ps.Kind()

	if err := s.repo.CreatePurchaseSession(ctx, ps); err != nil {
		s.metrics.CheckoutSessionsFailed.WithLabelValues(kind).Inc()
		return nil, fmt.Errorf("create purchase session: %w", err)
	}

	customerID := ""
	if user, err := s.repo.GetUser(ctx, req.UserID); err == nil {
		customerID = user.StripeCustomerID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Checkout] Could not load user %s: %v", req.UserID, err)
	}

	params := s.baseSessionParams(req.CallbackURL, ps.ID, customerID, req.Email)
	if course != nil {
		s.applyCourse(params, course, customerID == "")
	} else {
		applySubscription(params, req.PricingPlanID)
	}

	cs, err := s.gateway.NewCheckoutSession(ctx, params)
	if err != nil {
		s.metrics.CheckoutSessionsFailed.WithLabelValues(kind).Inc()
		return nil, fmt.Errorf("create stripe checkout session: %w", err)
	}

	if err := s.repo.AttachCheckoutSession(ctx, ps.ID, cs.ID); err != nil {
		log.Warnf("[Checkout] Could not store Stripe session %s on %s: %v", cs.ID, ps.ID, err)
	}
	s.publish(ctx, ps, models.PurchaseStatusOngoing)
	s.metrics.CheckoutSessionsCreated.WithLabelValues(kind).Inc()
	log.Infof("[Checkout] Purchase session %s (%s) handed off to Stripe session %s", ps.ID, kind, cs.ID)

	return &CheckoutSessionResult{
		StripeCheckoutSessionID: cs.ID,
		StripePublicKey:         s.gateway.PublicKey(),
		PurchaseSessionID:       ps.ID,
	}, nil
}

func (s *Service) baseSessionParams(callbackURL, purchaseSessionID, customerID, email string) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(callbackURL + "/?purchaseResult=success&ongoingPurchaseSessionId=" + purchaseSessionID),
		CancelURL:          stripe.String(callbackURL + "/?purchaseResult=failed"),
		ClientReferenceID:  stripe.String(purchaseSessionID),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	} else if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	return params
}

func (s *Service) applyCourse(params *stripe.CheckoutSessionParams, course *models.Course, createCustomer bool) {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(course.Description),
	}
	if course.LongDescription != "" {
		product.Description = stripe.String(course.LongDescription)
	}
	params.LineItems = []*stripe.CheckoutSessionLineItemParams{
		{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(course.PriceInCents()),
			},
			Quantity: stripe.Int64(1),
		},
	}
	params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
	if createCustomer {
		params.CustomerCreation = stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways))
	}
}

func applySubscription(params *stripe.CheckoutSessionParams, pricingPlanID string) {
	params.LineItems = []*stripe.CheckoutSessionLineItemParams{
		{
			Price:    stripe.String(pricingPlanID),
			Quantity: stripe.Int64(1),
		},
	}
	params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
}

// GetPurchaseSession returns a purchase session owned by userID.
func (s *Service) GetPurchaseSession(ctx context.Context, id, userID string) (*models.PurchaseSession, error) {
	ps, err := s.repo.GetPurchaseSession(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if userID == "" || ps.UserID != userID {
		return nil, ErrPurchaseSessionNotFound
	}
	return ps, nil
}

// waitSlice bounds each feed wait so a missed notification is caught by the
// next store read.
const waitSlice = 2 * time.Second

// WaitForPurchaseCompleted blocks until the session leaves the ongoing state
// or ctx is done. It returns the latest stored session in both cases, together
// with ctx.Err() on timeout.
func (s *Service) WaitForPurchaseCompleted(ctx context.Context, id, userID string) (*models.PurchaseSession, error) {
	readCtx := context.WithoutCancel(ctx)
	for {
		ps, err := s.GetPurchaseSession(readCtx, id, userID)
		if err != nil {
			return nil, err
		}
		if !ps.IsOngoing() {
			return ps, nil
		}
		if ctx.Err() != nil {
			return ps, ctx.Err()
		}

		sliceCtx, cancel := context.WithTimeout(ctx, waitSlice)
		if s.feed == nil {
			<-sliceCtx.Done()
		} else if _, err := s.feed.Wait(sliceCtx, ps.ID, models.PurchaseStatusCompleted); err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				log.Warnf("[Checkout] Purchase feed wait for %s failed: %v", ps.ID, err)
				<-sliceCtx.Done()
			}
		}
		cancel()
	}
}

func (s *Service) publish(ctx context.Context, ps *models.PurchaseSession, status string) {
	if s.feed == nil {
		return
	}
	u := purchasefeed.Update{
		PurchaseSessionID: ps.ID,
		UserID:            ps.UserID,
		Status:            status,
		PricingPlanID:     ps.PricingPlanID,
		At:                s.now(),
	}
	if ps.CourseID != nil {
		u.CourseID = *ps.CourseID
	}
	if err := s.feed.Publish(ctx, u); err != nil {
		log.Warnf("[Checkout] Could not publish %s for purchase session %s: %v", status, ps.ID, err)
	}
}
