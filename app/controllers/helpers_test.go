package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
	"github.com/ManuelReschke/CourseFox/internal/pkg/catalog"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/CourseFox/internal/pkg/identity"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CourseFox/internal/pkg/middleware"
	"github.com/ManuelReschke/CourseFox/internal/pkg/session"
)

const (
	testWebhookSecret = "whsec_controller_test"
	testToken         = "token-ada"
	testUID           = "uid-ada"
)

type stubGateway struct {
	*billing.StripeGateway
	mu     sync.Mutex
	calls  int
	newErr error
}

func (g *stubGateway) NewCheckoutSession(_ context.Context, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.newErr != nil {
		return nil, g.newErr
	}
	g.calls++
	return &stripe.CheckoutSession{ID: "cs_test_controller"}, nil
}

type testServer struct {
	app     *fiber.App
	db      *gorm.DB
	gateway *stubGateway
	course  *models.Course
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(client)
	t.Cleanup(func() {
		_ = client.Close()
		cache.SetClient(nil)
	})
	session.UseMemoryStore()

	db := dbtest.NewTestDB(t)
	repos := repository.NewRepositories(db)
	gateway := &stubGateway{StripeGateway: billing.NewStripeGateway(billing.StripeConfig{
		SecretKey:     "sk_test_123",
		PublicKey:     "pk_test_123",
		WebhookSecret: testWebhookSecret,
	})}
	svc := billing.NewServiceFromDB(db, gateway,
		billing.WithMetrics(metrics.NewMetrics("test", prometheus.NewRegistry())))
	verifier := identity.StaticVerifier{
		testToken: {UID: testUID, Email: "ada@example.com"},
	}

	Initialize(&Dependencies{
		Billing:  svc,
		Catalog:  catalog.New(repos.Course, repos.User),
		Users:    repos.User,
		Verifier: verifier,
		BaseURL:  "https://courses.test",
	})

	course := &models.Course{SeqNo: 1, URL: "go-basics", Description: "Go Basics", LongDescription: "Learn Go", Price: 50}
	course.SetCategories([]string{"BEGINNER"})
	require.NoError(t, repos.Course.Create(course))
	require.NoError(t, repos.Course.CreateLesson(&models.Lesson{CourseID: course.ID, SeqNo: 1, Description: "Hello, Go"}))

	app := fiber.New(fiber.Config{Views: html.New("../../views", ".html")})
	app.Use(middleware.UserContextMiddleware)
	requireAuth := middleware.RequireAPIAuth(verifier, repos.User)
	app.Get("/", HandleHome)
	app.Get("/courses/:url", HandleCourse)
	app.Get("/login", HandleAuthLogin)
	app.Post("/session/login", HandleSessionLogin)
	app.Post("/logout", middleware.RequireAuth, HandleAuthLogout)
	app.Get("/stripe-checkout", HandleCheckoutResult)
	app.Get("/flash/purchase-completed", HandleFlashPurchaseCompleted)
	app.Post("/stripe-webhooks", HandleStripeWebhook)
	app.Post("/api/checkout", requireAuth, HandleCheckout)
	app.Get("/api/v1/courses", HandleListCourses)
	app.Get("/api/v1/courses/:id", HandleGetCourse)
	app.Get("/api/v1/me", requireAuth, HandleGetMe)
	app.Get("/api/v1/purchases/:id", requireAuth, HandleGetPurchase)
	app.Get("/api/v1/purchases/:id/wait", requireAuth, HandleWaitPurchase)

	return &testServer{app: app, db: db, gateway: gateway, course: course}
}

// do sends req with an optional session cookie and returns status and body.
func (s *testServer) do(t *testing.T, req *http.Request, cookie *http.Cookie) (*http.Response, string) {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := s.app.Test(req, 5000)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (s *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest("POST", "/session/login", strings.NewReader(`{"idToken":"`+testToken+`"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := s.do(t, req, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func bearer(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func decode(t *testing.T, body string, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(body), out))
}

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
		"data":        map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testWebhookSecret})
	return signed.Payload, signed.Header
}
