package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Course struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title    string    `gorm:"not null" json:"title"`
	Language string    `gorm:"default:English" json:"language"`

	// Full structural document for the course (units, lesson skeletons,
	// unit tests). Lessons table mirrors the leaves for per-lesson state.
	CourseData datatypes.JSON `gorm:"type:jsonb" json:"course_data"`

	Archived bool `gorm:"default:false" json:"archived"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Course) TableName() string { return "courses" }
