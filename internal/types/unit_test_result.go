package types

import (
	"time"

	"github.com/google/uuid"
)

// UnitTestResult records the latest score for a unit test. One row per
// (user, course, unit title); retakes overwrite.
type UnitTestResult struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_unit_result" json:"user_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_unit_result" json:"course_id"`
	UnitTitle string    `gorm:"not null;uniqueIndex:idx_unit_result" json:"unit_title"`

	// Percentage 0..100.
	Score int `gorm:"not null" json:"score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UnitTestResult) TableName() string { return "unit_test_results" }
