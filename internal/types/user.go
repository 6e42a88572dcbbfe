package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `json:"name"`

	// Profile fields consumed by prompt construction.
	Language               string `gorm:"default:English" json:"language"`
	Age                    int    `json:"age"`
	Bio                    string `json:"bio"`
	PreferredLessonLength  string `gorm:"default:Medium" json:"preferred_lesson_length"`

	// Running total of model tokens consumed on behalf of this user.
	TokensUsed int64 `gorm:"default:0" json:"tokens_used"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }
