package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/CourseFox/internal/pkg/identity"
	"github.com/ManuelReschke/CourseFox/internal/pkg/session"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

func newAuthApp(t *testing.T) *fiber.App {
	t.Helper()
	db := dbtest.NewTestDB(t)
	require.NoError(t, db.Create(&models.User{ID: "uid-premium", Plan: models.PlanPremium}).Error)

	session.UseMemoryStore()
	verifier := identity.StaticVerifier{
		"tok-premium": {UID: "uid-premium", Email: "p@example.com"},
		"tok-new":     {UID: "uid-new", Email: "n@example.com"},
	}

	app := fiber.New()
	app.Use(UserContextMiddleware)
	app.Post("/session", func(c *fiber.Ctx) error {
		return session.Login(c, "uid-session", "s@example.com", models.PlanFree)
	})
	app.Get("/page", RequireAuth, func(c *fiber.Ctx) error {
		return c.SendString(usercontext.GetUserID(c))
	})
	app.Get("/api", RequireAPIAuth(verifier, repository.NewUserRepository(db)), func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		return c.SendString(uc.UserID + "|" + uc.Plan)
	})
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestRequireAPIAuthWithBearerToken(t *testing.T) {
	app := newAuthApp(t)

	req := httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("Authorization", "Bearer tok-premium")
	status, body := do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "uid-premium|premium", body)

	// The browser client sends the raw token without a prefix.
	req = httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("Authorization", "tok-new")
	status, body = do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "uid-new|free", body)
}

func TestRequireAPIAuthRejects(t *testing.T) {
	app := newAuthApp(t)

	status, body := do(t, app, httptest.NewRequest("GET", "/api", nil))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Contains(t, body, "User must be authenticated.")

	req := httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("Authorization", "Bearer forged")
	status, _ = do(t, app, req)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestSessionUserPassesBothGuards(t *testing.T) {
	app := newAuthApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/session", nil))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Cookies())
	cookie := resp.Cookies()[0]

	req := httptest.NewRequest("GET", "/api", nil)
	req.AddCookie(cookie)
	status, body := do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "uid-session|free", body)

	req = httptest.NewRequest("GET", "/page", nil)
	req.AddCookie(cookie)
	status, body = do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "uid-session", body)
}

func TestRequireAuthRedirectsAnonymous(t *testing.T) {
	app := newAuthApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/page", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}
