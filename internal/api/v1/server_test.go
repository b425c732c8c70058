package apiv1

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp() *fiber.App {
	app := fiber.New()
	deny := func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "unauthenticated"})
	}
	RegisterHandlers(app.Group("/api/v1"), NewAPIServer(), deny)
	return app
}

func TestGetPing(t *testing.T) {
	resp, err := newTestApp().Test(httptest.NewRequest("GET", "/api/v1/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var pong Pong
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pong))
	assert.Equal(t, "pong", pong.Ping)
}

func TestGetCourseRejectsInvalidID(t *testing.T) {
	for _, id := range []string{"abc", "0", "-1"} {
		resp, err := newTestApp().Test(httptest.NewRequest("GET", "/api/v1/courses/"+id, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, id)
	}
}

func TestAuthRoutesUseMiddleware(t *testing.T) {
	app := newTestApp()
	for _, path := range []string{"/api/v1/me", "/api/v1/purchases/abc", "/api/v1/purchases/abc/wait"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, path)
	}
}
