// Package catalog serves the course list with a Redis cache in front of the
// database and flags the courses a user can open.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
)

const (
	CacheKey = "courses:all"
	CacheTTL = 5 * time.Minute
)

// ErrCourseNotFound is returned for an unknown id or url slug.
var ErrCourseNotFound = errors.New("course not found")

// CourseView is a course as shown to one visitor.
type CourseView struct {
	models.Course
	CategoryNames []string `json:"categories"`
	Owned         bool     `json:"owned"`
}

// Detail is a single course page. Lessons are only filled for owners.
type Detail struct {
	CourseView
	Lessons []models.Lesson `json:"lessons"`
}

type Catalog struct {
	courses repository.CourseRepository
	users   repository.UserRepository
}

func New(courses repository.CourseRepository, users repository.UserRepository) *Catalog {
	return &Catalog{courses: courses, users: users}
}

// All returns every course in seqNo order, read through the cache.
func (c *Catalog) All() ([]CourseView, error) {
	var cached []CourseView
	err := cache.GetJSON(CacheKey, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Warnf("[Catalog] Cache read failed, using database: %v", err)
	}

	courses, err := c.courses.List()
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	views := make([]CourseView, 0, len(courses))
	for _, course := range courses {
		views = append(views, CourseView{Course: course, CategoryNames: course.CategoryList()})
	}

	if err := cache.SetJSON(CacheKey, views, CacheTTL); err != nil {
		log.Warnf("[Catalog] Cache write failed: %v", err)
	}
	return views, nil
}

// Invalidate drops the cached list, e.g. after seeding.
func (c *Catalog) Invalidate() {
	if err := cache.Delete(CacheKey); err != nil {
		log.Warnf("[Catalog] Cache invalidation failed: %v", err)
	}
}

// List returns the courses of one category (all when empty) with ownership
// flags for userID. An empty userID means an anonymous visitor.
func (c *Catalog) List(category, userID string) ([]CourseView, error) {
	all, err := c.All()
	if err != nil {
		return nil, err
	}

	category = strings.ToUpper(strings.TrimSpace(category))
	out := make([]CourseView, 0, len(all))
	for _, v := range all {
		if category != "" && !hasCategory(v.CategoryNames, category) {
			continue
		}
		out = append(out, v)
	}

	if userID == "" {
		return out, nil
	}
	user, owned, err := c.access(userID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Owned = entitlements.CanAccessCourse(user, owned, out[i].ID)
	}
	return out, nil
}

// ByID returns one course with the ownership flag for userID.
func (c *Catalog) ByID(id uint, userID string) (*CourseView, error) {
	course, err := c.courses.GetByID(id)
	return c.view(course, err, userID)
}

// ByURL loads the course page, including lessons when the user owns it.
func (c *Catalog) ByURL(url, userID string) (*Detail, error) {
	course, err := c.courses.GetByURL(url)
	view, err := c.view(course, err, userID)
	if err != nil {
		return nil, err
	}
	detail := &Detail{CourseView: *view, Lessons: []models.Lesson{}}
	if !view.Owned {
		return detail, nil
	}
	lessons, err := c.courses.ListLessons(view.ID)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	detail.Lessons = lessons
	return detail, nil
}

// OwnedCourseIDs lists the courses bought individually by userID.
func (c *Catalog) OwnedCourseIDs(userID string) ([]uint, error) {
	ids, err := c.users.ListOwnedCourseIDs(userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint{}
	}
	return ids, nil
}

func (c *Catalog) view(course *models.Course, err error, userID string) (*CourseView, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	v := &CourseView{Course: *course, CategoryNames: course.CategoryList()}
	if userID == "" {
		return v, nil
	}
	user, owned, err := c.access(userID)
	if err != nil {
		return nil, err
	}
	v.Owned = entitlements.CanAccessCourse(user, owned, course.ID)
	return v, nil
}

// access loads the user's plan and owned courses. Users without a row yet
// are treated as free users owning nothing.
func (c *Catalog) access(userID string) (*models.User, map[uint]bool, error) {
	user, err := c.users.GetByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, map[uint]bool{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	ids, err := c.users.ListOwnedCourseIDs(userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list owned courses: %w", err)
	}
	owned := make(map[uint]bool, len(ids))
	for _, id := range ids {
		owned[id] = true
	}
	return user, owned, nil
}

func hasCategory(categories []string, want string) bool {
	for _, c := range categories {
		if c == want {
			return true
		}
	}
	return false
}
