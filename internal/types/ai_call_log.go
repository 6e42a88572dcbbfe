package types

import (
	"time"

	"github.com/google/uuid"
)

// AICallLog is an audit row for a single text-model or image call.
type AICallLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Kind       string     `gorm:"not null" json:"kind"`
	Model      string     `json:"model"`
	TokensUsed int        `json:"tokens_used"`
	DurationMS int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (AICallLog) TableName() string { return "ai_call_logs" }
