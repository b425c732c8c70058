package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CourseFox/internal/pkg/purchasefeed"
)

const testWebhookSecret = "whsec_test_secret"

// fakeGateway records checkout params and verifies signatures with the real
// stripe-go webhook code.
type fakeGateway struct {
	*StripeGateway
	mu       sync.Mutex
	params   []*stripe.CheckoutSessionParams
	newErr   error
	sessions map[string]*CompletedCheckout
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		StripeGateway: NewStripeGateway(StripeConfig{
			SecretKey:     "sk_test_123",
			PublicKey:     "pk_test_123",
			WebhookSecret: testWebhookSecret,
		}),
		sessions: map[string]*CompletedCheckout{},
	}
}

func (g *fakeGateway) NewCheckoutSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.newErr != nil {
		return nil, g.newErr
	}
	g.params = append(g.params, params)
	return &stripe.CheckoutSession{ID: fmt.Sprintf("cs_test_%d", len(g.params))}, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*CompletedCheckout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cc, ok := g.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such checkout session: %s", id)
	}
	return cc, nil
}

func (g *fakeGateway) lastParams(t *testing.T) *stripe.CheckoutSessionParams {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.params)
	return g.params[len(g.params)-1]
}

type recordingFeed struct {
	mu      sync.Mutex
	updates []purchasefeed.Update
}

func (f *recordingFeed) Publish(_ context.Context, u purchasefeed.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

func (f *recordingFeed) Wait(ctx context.Context, _, _ string) (purchasefeed.Update, error) {
	<-ctx.Done()
	return purchasefeed.Update{}, ctx.Err()
}

func (f *recordingFeed) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.updates))
	for _, u := range f.updates {
		out = append(out, u.Status)
	}
	return out
}

type recordingReceipts struct {
	ids []string
}

func (r *recordingReceipts) ScheduleReceipt(_ context.Context, id string) error {
	r.ids = append(r.ids, id)
	return nil
}

type testEnv struct {
	db       *gorm.DB
	svc      *Service
	gateway  *fakeGateway
	feed     *recordingFeed
	receipts *recordingReceipts
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.NewTestDB(t)
	env := &testEnv{
		db:       db,
		gateway:  newFakeGateway(),
		feed:     &recordingFeed{},
		receipts: &recordingReceipts{},
	}
	env.svc = NewServiceFromDB(db, env.gateway,
		WithFeed(env.feed),
		WithReceipts(env.receipts),
		WithMetrics(metrics.NewMetrics("test", prometheus.NewRegistry())),
	)
	return env
}

func (e *testEnv) createCourse(t *testing.T, url string, price int64) *models.Course {
	t.Helper()
	c := &models.Course{
		URL:             url,
		Description:     "Course " + url,
		LongDescription: "All about " + url,
		Price:           price,
	}
	require.NoError(t, e.db.Create(c).Error)
	return c
}

func (e *testEnv) purchaseSession(t *testing.T, id string) *models.PurchaseSession {
	t.Helper()
	var ps models.PurchaseSession
	require.NoError(t, e.db.Where("id = ?", id).First(&ps).Error)
	return &ps
}

// signedEvent builds a Stripe event payload and a valid signature header.
func signedEvent(t *testing.T, id, eventType string, object interface{}) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"created":     time.Now().Unix(),
		"data": map[string]json.RawMessage{
			"object": raw,
		},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  testWebhookSecret,
	})
	return signed.Payload, signed.Header
}

func completedCheckoutObject(purchaseSessionID, customer, subscription string) map[string]interface{} {
	obj := map[string]interface{}{
		"id":                  "cs_test_done",
		"object":              "checkout.session",
		"client_reference_id": purchaseSessionID,
		"customer":            customer,
		"customer_details":    map[string]string{"email": "buyer@example.com"},
		"status":              "complete",
		"payment_status":      "paid",
	}
	if subscription != "" {
		obj["mode"] = "subscription"
		obj["subscription"] = subscription
	} else {
		obj["mode"] = "payment"
	}
	return obj
}
