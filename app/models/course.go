package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	CategoryBeginner = "BEGINNER"
	CategoryAdvanced = "ADVANCED"
)

// Course is a purchasable course of the catalog. Price is stored in whole
// currency units; the checkout converts it to the smallest unit.
type Course struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SeqNo           int       `gorm:"index" json:"seqNo"`
	URL             string    `gorm:"type:varchar(191);uniqueIndex" json:"url" validate:"required,max=191"`
	Description     string    `gorm:"type:varchar(255);not null" json:"description" validate:"required,max=255"`
	LongDescription string    `gorm:"type:text" json:"longDescription"`
	IconURL         string    `gorm:"type:varchar(512);default:''" json:"iconUrl" validate:"omitempty,url,max=512"`
	ThumbnailURL    string    `gorm:"type:varchar(512);default:''" json:"thumbnailUrl"`
	Price           int64     `gorm:"not null;default:0" json:"price" validate:"gte=0"`
	Categories      string    `gorm:"type:varchar(255);default:''" json:"-"`
	LessonsCount    int       `gorm:"default:0" json:"lessonsCount"`
	Promo           bool      `gorm:"default:false" json:"promo"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (c *Course) Validate() error {
	v := validator.New()

	return v.Struct(c)
}

// CategoryList splits the stored comma separated categories.
func (c *Course) CategoryList() []string {
	var out []string
	for _, raw := range strings.Split(c.Categories, ",") {
		cat := strings.ToUpper(strings.TrimSpace(raw))
		if cat != "" {
			out = append(out, cat)
		}
	}
	return out
}

// SetCategories normalizes and stores the given categories.
func (c *Course) SetCategories(categories []string) {
	seen := make(map[string]struct{}, len(categories))
	clean := make([]string, 0, len(categories))
	for _, raw := range categories {
		cat := strings.ToUpper(strings.TrimSpace(raw))
		if cat == "" {
			continue
		}
		if _, ok := seen[cat]; ok {
			continue
		}
		seen[cat] = struct{}{}
		clean = append(clean, cat)
	}
	c.Categories = strings.Join(clean, ",")
}

// HasCategory reports whether the course is tagged with the category.
func (c *Course) HasCategory(category string) bool {
	want := strings.ToUpper(strings.TrimSpace(category))
	for _, cat := range c.CategoryList() {
		if cat == want {
			return true
		}
	}
	return false
}

// PriceInCents returns the line item amount sent to the payment provider.
func (c *Course) PriceInCents() int64 {
	return c.Price * 100
}

// Lesson belongs to a course and is only listed to owners.
type Lesson struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CourseID    uint      `gorm:"not null;index" json:"courseId"`
	SeqNo       int       `gorm:"index" json:"seqNo"`
	Description string    `gorm:"type:varchar(255);not null" json:"description"`
	Duration    string    `gorm:"type:varchar(20);default:''" json:"duration"`
	VideoID     string    `gorm:"type:varchar(100);default:''" json:"videoId"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"-"`
}
