package repository

import (
	"strings"

	"github.com/ManuelReschke/CourseFox/app/models"
	"gorm.io/gorm"
)

// courseRepository implements the CourseRepository interface
type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository creates a new course repository instance
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

// Create inserts a course; the database assigns the id.
func (r *courseRepository) Create(course *models.Course) error {
	return r.db.Create(course).Error
}

func (r *courseRepository) GetByID(id uint) (*models.Course, error) {
	var course models.Course
	if err := r.db.First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *courseRepository) GetByURL(url string) (*models.Course, error) {
	var course models.Course
	if err := r.db.Where("url = ?", strings.TrimSpace(url)).First(&course).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns the whole catalog in seqNo order
func (r *courseRepository) List() ([]models.Course, error) {
	var courses []models.Course
	err := r.db.Order("seq_no ASC, id ASC").Find(&courses).Error
	return courses, err
}

// ListByCategory filters on the comma separated categories column
func (r *courseRepository) ListByCategory(category string) ([]models.Course, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	out := make([]models.Course, 0, len(all))
	for i := range all {
		if all[i].HasCategory(category) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (r *courseRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Course{}).Count(&count).Error
	return count, err
}

// CreateLesson inserts a lesson and keeps the course's lesson counter in sync
func (r *courseRepository) CreateLesson(lesson *models.Lesson) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(lesson).Error; err != nil {
			return err
		}
		return tx.Model(&models.Course{}).
			Where("id = ?", lesson.CourseID).
			UpdateColumn("lessons_count", gorm.Expr("lessons_count + ?", 1)).Error
	})
}

func (r *courseRepository) ListLessons(courseID uint) ([]models.Lesson, error) {
	var lessons []models.Lesson
	err := r.db.Where("course_id = ?", courseID).Order("seq_no ASC, id ASC").Find(&lessons).Error
	return lessons, err
}

func (r *courseRepository) UpdateAssets(id uint, iconURL, thumbnailURL string) error {
	return r.db.Model(&models.Course{}).Where("id = ?", id).Updates(map[string]interface{}{
		"icon_url":      iconURL,
		"thumbnail_url": thumbnailURL,
	}).Error
}
