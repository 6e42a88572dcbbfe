package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

type AICallLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.AICallLog) ([]*types.AICallLog, error)
	GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.AICallLog, error)
}

type aiCallLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAICallLogRepo(db *gorm.DB, baseLog *logger.Logger) AICallLogRepo {
	repoLog := baseLog.With("repo", "AICallLogRepo")
	return &aiCallLogRepo{db: db, log: repoLog}
}

func (r *aiCallLogRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.AICallLog) ([]*types.AICallLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return rows, nil
	}
	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("create ai call logs: %w", err)
	}
	return rows, nil
}

func (r *aiCallLogRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.AICallLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(userIDs) == 0 {
		return nil, nil
	}
	var rows []*types.AICallLog
	if err := transaction.WithContext(ctx).Where("user_id IN ?", userIDs).
		Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get ai call logs by user ids: %w", err)
	}
	return rows, nil
}
