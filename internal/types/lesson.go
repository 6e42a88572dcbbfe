package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Lesson struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	UnitTitle   string    `gorm:"not null" json:"unit_title"`
	LessonTitle string    `gorm:"not null" json:"lesson_title"`

	// Unit-major ordering across the whole course.
	Position int `gorm:"not null;default:0" json:"position"`

	// Rendered body. Empty until the lesson is materialized.
	HTMLContent string `gorm:"type:text" json:"html_content"`
	Completed   bool   `gorm:"default:false" json:"completed"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Lesson) TableName() string { return "lessons" }
