package types

import (
	"time"

	"github.com/google/uuid"
)

// CourseShare is an opaque token that lets another user copy a course.
type CourseShare struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Token    string    `gorm:"uniqueIndex;not null" json:"token"`

	CreatedAt time.Time `json:"created_at"`
}

func (CourseShare) TableName() string { return "course_shares" }
