package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/session"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the complete user context for every request
func UserContextMiddleware(c *fiber.Ctx) error {
	store := session.GetSessionStore()
	if store == nil {
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}

	sess, err := store.Get(c)
	if err != nil {
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}

	userID, _ := sess.Get(usercontext.KeyUserID).(string)
	if userID == "" {
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}

	email, _ := sess.Get(usercontext.KeyEmail).(string)
	plan, _ := sess.Get(usercontext.KeyPlan).(string)
	if plan == "" {
		plan = models.PlanFree
	}
	usercontext.Set(c, usercontext.UserContext{
		UserID:     userID,
		Email:      email,
		IsLoggedIn: true,
		Plan:       plan,
	})
	return c.Next()
}
