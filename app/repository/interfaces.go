package repository

import (
	"github.com/ManuelReschke/CourseFox/app/models"
	"gorm.io/gorm"
)

// CourseRepository defines the interface for catalog database operations
type CourseRepository interface {
	Create(course *models.Course) error
	GetByID(id uint) (*models.Course, error)
	GetByURL(url string) (*models.Course, error)
	List() ([]models.Course, error)
	ListByCategory(category string) ([]models.Course, error)
	Count() (int64, error)
	CreateLesson(lesson *models.Lesson) error
	ListLessons(courseID uint) ([]models.Lesson, error)
	UpdateAssets(id uint, iconURL, thumbnailURL string) error
}

// UserRepository defines the read side of user entitlements
type UserRepository interface {
	GetByID(id string) (*models.User, error)
	GetByStripeCustomerID(customerID string) (*models.User, error)
	ListOwnedCourseIDs(userID string) ([]uint, error)
	OwnsCourse(userID string, courseID uint) (bool, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Course CourseRepository
	User   UserRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Course: NewCourseRepository(db),
		User:   NewUserRepository(db),
	}
}
