// Package apiv1 binds the /api/v1 routes described in
// public/docs/v1/openapi.yml to their handlers.
package apiv1

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Pong is the /ping response body.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /courses)
	ListCourses(c *fiber.Ctx) error
	// (GET /courses/{id})
	GetCourse(c *fiber.Ctx, id uint) error
	// (GET /me)
	GetMe(c *fiber.Ctx) error
	// (GET /purchases/{id})
	GetPurchase(c *fiber.Ctx, id string) error
	// (GET /purchases/{id}/wait)
	WaitForPurchase(c *fiber.Ctx, id string) error
}

// ServerInterfaceWrapper converts fiber contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func (w *ServerInterfaceWrapper) GetPing(c *fiber.Ctx) error {
	return w.Handler.GetPing(c)
}

func (w *ServerInterfaceWrapper) ListCourses(c *fiber.Ctx) error {
	return w.Handler.ListCourses(c)
}

func (w *ServerInterfaceWrapper) GetCourse(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid format for parameter id"})
	}
	return w.Handler.GetCourse(c, uint(id))
}

func (w *ServerInterfaceWrapper) GetMe(c *fiber.Ctx) error {
	return w.Handler.GetMe(c)
}

func (w *ServerInterfaceWrapper) GetPurchase(c *fiber.Ctx) error {
	return w.Handler.GetPurchase(c, c.Params("id"))
}

func (w *ServerInterfaceWrapper) WaitForPurchase(c *fiber.Ctx) error {
	return w.Handler.WaitForPurchase(c, c.Params("id"))
}

// RegisterHandlers creates the routes on router. auth guards the routes that
// need a signed-in user.
func RegisterHandlers(router fiber.Router, si ServerInterface, auth fiber.Handler) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.Get("/ping", wrapper.GetPing)
	router.Get("/courses", wrapper.ListCourses)
	router.Get("/courses/:id", wrapper.GetCourse)
	router.Get("/me", auth, wrapper.GetMe)
	router.Get("/purchases/:id", auth, wrapper.GetPurchase)
	router.Get("/purchases/:id/wait", auth, wrapper.WaitForPurchase)
}
