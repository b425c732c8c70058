package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/CourseFox/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// ListCourses returns the catalog with ownership flags when a session exists.
func (s *APIServer) ListCourses(c *fiber.Ctx) error {
	return controllers.HandleListCourses(c)
}

// GetCourse returns one course. The wrapper already validated the id.
func (s *APIServer) GetCourse(c *fiber.Ctx, id uint) error {
	return controllers.HandleGetCourse(c)
}

// GetMe returns the caller's plan and owned courses.
func (s *APIServer) GetMe(c *fiber.Ctx) error {
	return controllers.HandleGetMe(c)
}

// GetPurchase returns a purchase session of the caller.
func (s *APIServer) GetPurchase(c *fiber.Ctx, id string) error {
	return controllers.HandleGetPurchase(c)
}

// WaitForPurchase long-polls until the purchase session is fulfilled.
func (s *APIServer) WaitForPurchase(c *fiber.Ctx, id string) error {
	return controllers.HandleWaitPurchase(c)
}
