package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/internal/pkg/catalog"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// HandleListCourses returns the catalog, optionally filtered by ?category=.
func HandleListCourses(c *fiber.Ctx) error {
	courses, err := deps.Catalog.List(c.Query("category"), usercontext.GetUserID(c))
	if err != nil {
		log.Errorf("[Catalog] Could not list courses: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load courses")
	}
	return c.JSON(fiber.Map{"courses": courses})
}

// HandleGetCourse returns one course by numeric id.
func HandleGetCourse(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Params("id")), 10, 64)
	if err != nil || id == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid course id")
	}
	course, err := deps.Catalog.ByID(uint(id), usercontext.GetUserID(c))
	if errors.Is(err, catalog.ErrCourseNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Course not found")
	}
	if err != nil {
		log.Errorf("[Catalog] Could not load course %d: %v", id, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load course")
	}
	return c.JSON(course)
}
