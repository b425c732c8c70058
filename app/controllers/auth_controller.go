package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/session"
)

type sessionLoginRequest struct {
	IDToken string `json:"idToken" form:"idToken"`
}

// HandleAuthLogin renders the Firebase sign-in page.
func HandleAuthLogin(c *fiber.Ctx) error {
	if isLoggedIn(c) {
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	data := pageData(c, "Login")
	data["Firebase"] = deps.Firebase
	data["DevToken"] = deps.DevToken
	return c.Render("login", data, "layouts/main")
}

// HandleSessionLogin exchanges a Firebase ID token for a web session.
func HandleSessionLogin(c *fiber.Ctx) error {
	var req sessionLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid login request")
	}
	token := strings.TrimSpace(req.IDToken)
	if token == "" || deps.Verifier == nil {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_token", "Missing ID token")
	}

	id, err := deps.Verifier.VerifyIDToken(c.UserContext(), token)
	if err != nil {
		log.Warnf("[Auth] Login rejected: %v", err)
		return jsonError(c, fiber.StatusUnauthorized, "invalid_token", "The ID token could not be verified")
	}

	plan := models.PlanFree
	if user, err := deps.Users.GetByID(id.UID); err == nil && user.Plan != "" {
		plan = user.Plan
	}
	if err := session.Login(c, id.UID, id.Email, plan); err != nil {
		log.Errorf("[Auth] Could not store session for %s: %v", id.UID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not start session")
	}

	fm := fiber.Map{"type": "success", "message": "Welcome back!"}
	if !c.Is("json") {
		return flash.WithSuccess(c, fm).Redirect("/", fiber.StatusSeeOther)
	}
	flash.WithSuccess(c, fm)
	return c.JSON(fiber.Map{"uid": id.UID, "email": id.Email, "plan": plan, "redirect": "/"})
}

func HandleAuthLogout(c *fiber.Ctx) error {
	if err := session.Logout(c); err != nil {
		fm := fiber.Map{"type": "error", "message": "Logout failed, please try again."}
		return flash.WithError(c, fm).Redirect("/")
	}
	fm := fiber.Map{"type": "success", "message": "You are logged out."}
	return flash.WithSuccess(c, fm).Redirect("/login")
}
